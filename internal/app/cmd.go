package app

// Command は起動サブコマンドを表す。
// 単一バイナリをsupervisorの引数だけでAPIサーバー・クリーンアップワーカー・
// マイグレーションに切り替えるための薄い列挙型。
type Command string

const (
	// CommandServe はHTTP APIサーバーとして起動する。
	CommandServe Command = "serve"
	// CommandWorker は孤児メンバーシップのクリーンアップワーカーとして起動する。
	CommandWorker Command = "worker"
	// CommandMigrate はスキーママイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は稼働中サーバーの/healthzを叩いて終了コードで結果を返す。
	// シェルを持たないコンテナイメージのHEALTHCHECK用。
	CommandHealthcheck Command = "healthcheck"
)

// knownCommands は受け付けるサブコマンドの一覧。
var knownCommands = map[string]Command{
	"serve":       CommandServe,
	"worker":      CommandWorker,
	"migrate":     CommandMigrate,
	"healthcheck": CommandHealthcheck,
}

// ParseCommand はos.Args[1:]相当の引数列から起動サブコマンドを決定する。
// 引数なし・未知のサブコマンドはいずれもCommandServeとして扱う。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := knownCommands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}
