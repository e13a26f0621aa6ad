package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/entrhq/retain/pkg/memory"
)

func newStoreCmd(a *app) *cobra.Command {
	var (
		content    string
		tags       []string
		difficulty float64
	)
	cmd := &cobra.Command{
		Use:   "store <topic>",
		Short: "Store a new memory",
		Long:  "Store a new memory. Content comes from --content, or from stdin when the flag is omitted.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if content == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read content from stdin: %w", err)
				}
				content = strings.TrimSpace(string(data))
			}
			if content == "" {
				return fmt.Errorf("no content given")
			}
			out, err := a.tools.Store(args[0], content, tags, difficulty)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&content, "content", "c", "", "memory content (default: read stdin)")
	cmd.Flags().StringSliceVarP(&tags, "tags", "t", nil, "tags (default: derived from the text)")
	cmd.Flags().Float64VarP(&difficulty, "difficulty", "d", 0.5, "difficulty in [0,1]")
	return cmd
}

func newRecallCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recall <query>",
		Short: "Search memories by topic, tag, or content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.tools.Recall(args[0], limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", memory.DefaultSearchLimit, "maximum results")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var (
		phase   int
		tag     string
		keyword string
		limit   int
		offset  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories by priority",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := memory.ListOptions{Tag: tag, Keyword: keyword, Limit: limit, Offset: offset}
			if cmd.Flags().Changed("phase") {
				opts.Phase = &phase
			}
			out, err := a.tools.List(opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().IntVar(&phase, "phase", 0, "filter by eviction phase (0=full, 1=hint, 2=abstract)")
	cmd.Flags().StringVar(&tag, "tag", "", "filter by exact tag")
	cmd.Flags().StringVar(&keyword, "keyword", "", "filter by topic substring")
	cmd.Flags().IntVarP(&limit, "limit", "n", memory.DefaultListLimit, "maximum results")
	cmd.Flags().IntVar(&offset, "offset", 0, "skip results")
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a memory in full (counts as an access)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.tools.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newForgetCmd(a *app) *cobra.Command {
	var noArchive bool
	cmd := &cobra.Command{
		Use:   "forget <id>",
		Short: "Delete a memory, archiving it first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.tools.Forget(args[0], !noArchive)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noArchive, "no-archive", false, "skip the archive snapshot")
	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show store totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.tools.Status()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check catalog and file consistency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.tools.Check()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newFixCmd(a *app) *cobra.Command {
	var (
		noArchive     bool
		cleanArchives bool
	)
	cmd := &cobra.Command{
		Use:   "fix",
		Short: "Repair catalog drift found by check",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.tools.Fix(!noArchive, cleanArchives)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noArchive, "no-archive", false, "discard orphaned files instead of archiving them")
	cmd.Flags().BoolVar(&cleanArchives, "clean-archives", false, "also delete orphaned archives")
	return cmd
}

func newEvictCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "evict",
		Short: "Run one eviction batch if over capacity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.tools.Evict()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a degraded memory from its archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.tools.Restore(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newArchivesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "archives",
		Short: "List archived memories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.tools.Archives()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newSessionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Session lifecycle hooks",
	}

	start := &cobra.Command{
		Use:   "start",
		Short: "Begin a session and print the memory context document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.session.Start()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), doc)
			return nil
		},
	}

	end := &cobra.Command{
		Use:   "end",
		Short: "Settle the session: score difficulty, refresh priorities, evict",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.session.End()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session ended: difficulty=%.2f applied=%d refreshed=%d\n",
				result.Difficulty, result.DifficultyApplied, result.PrioritiesRefreshed)
			if result.Eviction != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Eviction: processed=%d archived=%d deleted=%d\n",
					result.Eviction.Processed, result.Eviction.Archived, result.Eviction.Deleted)
			}
			return nil
		},
	}

	var failed bool
	tool := &cobra.Command{
		Use:   "tool",
		Short: "Record a tool invocation outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.session.TrackTool(failed)
		},
	}
	tool.Flags().BoolVar(&failed, "failed", false, "the tool invocation failed")

	compact := &cobra.Command{
		Use:   "compact",
		Short: "Record that the conversation was compacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.session.MarkCompaction()
		},
	}

	tokens := &cobra.Command{
		Use:   "tokens",
		Short: "Count tokens of stdin text and add them to the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			n := a.counter.Count(string(data))
			if err := a.session.TrackTokens(n); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tracked %d tokens\n", n)
			return nil
		},
	}

	cmd.AddCommand(start, end, tool, compact, tokens)
	return cmd
}
