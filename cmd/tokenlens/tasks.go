package tokenlens

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/igorsilveira/tokenlens/pkg/a2a"
	"github.com/igorsilveira/tokenlens/pkg/config"
	"github.com/igorsilveira/tokenlens/pkg/notify"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks [task-id]",
	Short: "List stored tasks, or show one task as JSON or YAML",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTasks,
}

var (
	tasksLimit  int
	tasksOffset int
	tasksOutput string
)

func init() {
	tasksCmd.Flags().IntVar(&tasksLimit, "limit", 20, "maximum number of tasks")
	tasksCmd.Flags().IntVar(&tasksOffset, "offset", 0, "number of newest tasks to skip")
	tasksCmd.Flags().StringVarP(&tasksOutput, "output", "o", "json", "format for a single task: json or yaml")
}

func runTasks(cmd *cobra.Command, args []string) error {
	st, _, err := openData(config.Current())
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()

	if len(args) == 1 {
		task, err := st.GetTask(ctx, args[0])
		if err != nil {
			return err
		}
		return printStructured(os.Stdout, tasksOutput, task)
	}

	tasks, err := st.ListTasks(ctx, tasksLimit, tasksOffset)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks found.")
	}
	for _, t := range tasks {
		fmt.Printf("%s  %-14s %-20s %s\n",
			t.CreatedAt.Format("2006-01-02 15:04:05"), t.Status.State, skillOf(t), t.ID)
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Println()
	printStats(stats)
	return nil
}

func skillOf(t *a2a.Task) string {
	if id := notify.SkillOf(t); id != "" {
		return id
	}
	return "-"
}
