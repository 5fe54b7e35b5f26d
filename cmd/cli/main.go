// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// cli 桥接服务命令行客户端，通过 CODEX_API_URL 指定服务地址
package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/iddy-ani/codex/pkg/config"
)

const version = "codex-bridge cli 0.1.0"

func main() {
	os.Exit(run(os.Args[1:], newClient(apiBaseURL()), os.Stdin, os.Stdout, os.Stderr))
}

// run 执行命令并返回退出码
func run(args []string, c *resty.Client, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd(c, stdin)
	if args == nil {
		// nil 会让 cobra 回退到 os.Args
		args = []string{}
	}
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// request 发起一次 API 调用并输出响应
type request func(c *resty.Client, args []string) (envelope, error)

func apiCmd(c *resty.Client, use, short string, nargs cobra.PositionalArgs, do request) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  nargs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := do(c, args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(out))
			return nil
		},
	}
}

func newRootCmd(c *resty.Client, stdin io.Reader) *cobra.Command {
	root := &cobra.Command{
		Use:           "codex",
		Short:         "Command line client for the codex bridge API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "显示版本",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	root.AddCommand(apiCmd(c, "health", "服务健康检查", cobra.NoArgs,
		func(c *resty.Client, _ []string) (envelope, error) { return getHealth(c) }))
	root.AddCommand(newConfigCmd(c))
	root.AddCommand(apiCmd(c, "sessions", "列出活跃会话", cobra.NoArgs,
		func(c *resty.Client, _ []string) (envelope, error) { return listSessions(c) }))
	root.AddCommand(apiCmd(c, "ls [path]", "浏览服务端目录", cobra.MaximumNArgs(1),
		func(c *resty.Client, args []string) (envelope, error) {
			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			return browse(c, path)
		}))
	root.AddCommand(apiCmd(c, "validate <path>", "校验工作目录", cobra.ExactArgs(1),
		func(c *resty.Client, args []string) (envelope, error) { return validate(c, args[0]) }))
	root.AddCommand(newInstructionsCmd(c, stdin))
	root.AddCommand(newServerCmd())
	return root
}

func newConfigCmd(c *resty.Client) *cobra.Command {
	cmd := apiCmd(c, "config", "显示服务端配置与模型列表", cobra.NoArgs,
		func(c *resty.Client, _ []string) (envelope, error) { return getConfig(c) })
	cmd.AddCommand(&cobra.Command{
		Use:   "local",
		Short: "读取本地配置文件",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadAPIConfig()
			if err != nil {
				return fmt.Errorf("加载配置失败: %w", err)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "api.host=%s\n", cfg.API.Host)
			fmt.Fprintf(w, "api.port=%d\n", cfg.API.Port)
			fmt.Fprintf(w, "agent.provider=%s\n", cfg.Agent.Provider)
			fmt.Fprintf(w, "agent.model=%s\n", cfg.Agent.Model)
			fmt.Fprintf(w, "instructions.base_dir=%s\n", cfg.Instructions.BaseDir)
			return nil
		},
	})
	return cmd
}

func newInstructionsCmd(c *resty.Client, stdin io.Reader) *cobra.Command {
	cmd := apiCmd(c, "instructions", "列出指令", cobra.NoArgs,
		func(c *resty.Client, _ []string) (envelope, error) { return listInstructions(c) })
	cmd.AddCommand(
		apiCmd(c, "list", "列出指令", cobra.NoArgs,
			func(c *resty.Client, _ []string) (envelope, error) { return listInstructions(c) }),
		apiCmd(c, "current", "当前选中指令", cobra.NoArgs,
			func(c *resty.Client, _ []string) (envelope, error) { return currentInstruction(c) }),
		apiCmd(c, "get <name>", "读取指令内容", cobra.ExactArgs(1),
			func(c *resty.Client, args []string) (envelope, error) { return getInstruction(c, args[0]) }),
		apiCmd(c, "select <name>", "选择指令", cobra.ExactArgs(1),
			func(c *resty.Client, args []string) (envelope, error) { return selectInstruction(c, args[0]) }),
		apiCmd(c, "delete <name>", "删除指令", cobra.ExactArgs(1),
			func(c *resty.Client, args []string) (envelope, error) { return deleteInstruction(c, args[0]) }),
		// 内容来自文件参数，缺省或 "-" 时读 stdin
		apiCmd(c, "save <name> [file]", "保存指令", cobra.RangeArgs(1, 2),
			func(c *resty.Client, args []string) (envelope, error) {
				var (
					content []byte
					err     error
				)
				if len(args) > 1 && args[1] != "-" {
					content, err = os.ReadFile(args[1])
				} else {
					content, err = io.ReadAll(stdin)
				}
				if err != nil {
					return nil, fmt.Errorf("读取内容失败: %w", err)
				}
				return saveInstruction(c, args[0], string(content))
			}),
	)
	return cmd
}

func newServerCmd() *cobra.Command {
	server := &cobra.Command{Use: "server", Short: "服务管理"}
	server.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "启动 API 服务（go run ./cmd/api）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := exec.Command("go", "run", "./cmd/api")
			c.Stdout = cmd.OutOrStdout()
			c.Stderr = cmd.ErrOrStderr()
			c.Dir = "."
			if err := c.Run(); err != nil {
				return fmt.Errorf("server start: %w", err)
			}
			return nil
		},
	})
	return server
}
