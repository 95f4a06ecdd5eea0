// Package query は固定スキーマに対する合成可能なSQL述語を提供する。
// 文字列連結ではなく値としての述語を組み立て、最後にRebindで
// PostgreSQLのプレースホルダ形式（$1, $2, ...）へ変換する。
package query

import (
	"strconv"
	"strings"
)

// Cond はWHERE句の条件断片を表す。
// 条件式内のプレースホルダは?で記述し、引数はArgsに対応順で保持する。
type Cond struct {
	Expr string
	Args []any
}

// C は条件式と引数からCondを生成する。
func C(expr string, args ...any) Cond {
	return Cond{Expr: expr, Args: args}
}

// And は複数の条件をANDで結合したCondを返す。
// 空の条件は無視し、結合結果は括弧で囲む。
func And(conds ...Cond) Cond {
	return join(" AND ", conds)
}

// Or は複数の条件をORで結合したCondを返す。
// 空の条件は無視し、結合結果は括弧で囲む。
func Or(conds ...Cond) Cond {
	return join(" OR ", conds)
}

func join(sep string, conds []Cond) Cond {
	var exprs []string
	var args []any
	for _, c := range conds {
		if c.Expr == "" {
			continue
		}
		exprs = append(exprs, c.Expr)
		args = append(args, c.Args...)
	}
	if len(exprs) == 0 {
		return Cond{}
	}
	if len(exprs) == 1 {
		return Cond{Expr: exprs[0], Args: args}
	}
	return Cond{Expr: "(" + strings.Join(exprs, sep) + ")", Args: args}
}

// Rebind は?プレースホルダをbase+1から始まる$n形式へ変換した条件式を返す。
// すでに$nを使う固定部分のSQLに条件を埋め込む場合はbaseに使用済みの個数を渡す。
func (c Cond) Rebind(base int) string {
	var b strings.Builder
	n := base
	for _, ch := range c.Expr {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}
