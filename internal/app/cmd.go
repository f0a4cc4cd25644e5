package app

import "fmt"

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションの定期削除ワーカーとして起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandGrantRole はユーザーにロールを付与する。
	CommandGrantRole Command = "grant-role"
	// CommandRevokeRole はユーザーからロールを剥奪する。
	CommandRevokeRole Command = "revoke-role"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	case "grant-role":
		return CommandGrantRole
	case "revoke-role":
		return CommandRevokeRole
	default:
		return CommandServe
	}
}

// RoleArgs はgrant-role/revoke-roleの引数。
type RoleArgs struct {
	Email string
	Role  string
}

// ParseRoleArgs は "<command> <email> <role>" 形式の引数を解析する。
func ParseRoleArgs(args []string) (RoleArgs, error) {
	if len(args) != 3 || args[1] == "" || args[2] == "" {
		name := "grant-role"
		if len(args) > 0 {
			name = args[0]
		}
		return RoleArgs{}, fmt.Errorf("usage: storefront %s <email> <role>", name)
	}
	return RoleArgs{Email: args[1], Role: args[2]}, nil
}
