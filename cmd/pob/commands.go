package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/pobuild/pob/pkg/bundle"
	"github.com/pobuild/pob/pkg/config"
	"github.com/pobuild/pob/pkg/engine"
	"github.com/pobuild/pob/pkg/git"
	"github.com/pobuild/pob/pkg/hooks"
	"github.com/pobuild/pob/pkg/pipeline"
)

// workspace bundles the collaborators every command needs.
type workspace struct {
	store    *config.Store
	tool     config.Tool
	git      git.Client
	workRoot string
}

func newWorkspace() (*workspace, error) {
	store, err := config.Load(projectsRoot)
	if err != nil {
		return nil, err
	}
	tool, err := config.LoadTool(projectsRoot)
	if err != nil {
		return nil, err
	}
	workRoot, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return &workspace{store: store, tool: tool, git: git.NewCLI(), workRoot: workRoot}, nil
}

func (w *workspace) engine() *engine.Engine {
	return engine.New(w.store, w.git, w.workRoot)
}

// confirm asks the user unless --force is set. Outside an interactive
// terminal the answer is always no, so scripted runs must pass --force.
func confirm(prompt string) bool {
	if force {
		return true
	}
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		pterm.Warning.Println("Not an interactive terminal; re-run with --force to proceed")
		return false
	}
	ok, _ := pterm.DefaultInteractiveConfirm.Show(prompt)
	return ok
}

var applyCmd = &cobra.Command{
	Use:   "apply <project>",
	Short: "Apply the project's patch/override bundles to the working tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := newWorkspace()
		if err != nil {
			return err
		}
		return w.engine().Apply(args[0])
	},
}

var revertCmd = &cobra.Command{
	Use:   "revert <project>",
	Short: "Revert the project's applied bundles from the working tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := newWorkspace()
		if err != nil {
			return err
		}
		return w.engine().Revert(args[0])
	},
}

var (
	newFiles  []string
	newUpdate bool

	newCmd = &cobra.Command{
		Use:   "new <project> <bundle>",
		Short: "Capture repository changes into a new bundle",
		Long: `Collects the staged and working changes of every repository under the
current directory. Tracked files become patches, untracked files become
overrides, stored under the project's board po directory.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectName, bundleName := args[0], args[1]
			w, err := newWorkspace()
			if err != nil {
				return err
			}
			s := bundle.NewScaffolder(w.store, w.git, w.workRoot)
			s.AddIgnore(w.tool.Ignore...)

			opts := bundle.NewOptions{Files: newFiles, RequireExisting: newUpdate}
			if len(opts.Files) == 0 {
				candidates, err := s.Candidates(projectName)
				if err != nil {
					return err
				}
				if len(candidates) == 0 {
					pterm.Info.Println("No repository changes to capture")
				} else {
					items := make([]pterm.BulletListItem, 0, len(candidates))
					for _, c := range candidates {
						kind := "override"
						if c.Tracked {
							kind = "patch"
						}
						items = append(items, pterm.BulletListItem{
							Level: 0,
							Text:  fmt.Sprintf("%s (%s)", c.WorkRel, kind),
						})
					}
					_ = pterm.DefaultBulletList.WithItems(items).Render()
				}
				if !confirm(fmt.Sprintf("Capture %d file(s) into bundle '%s'?", len(candidates), bundleName)) {
					return fmt.Errorf("aborted")
				}
			}
			return s.Create(projectName, bundleName, opts)
		},
	}
)

var delCmd = &cobra.Command{
	Use:   "del <project> <bundle>",
	Short: "Delete a bundle and scrub its configuration references",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectName, bundleName := args[0], args[1]
		w, err := newWorkspace()
		if err != nil {
			return err
		}
		if users := bundle.UsedBy(w.store, bundleName); len(users) > 0 {
			pterm.Warning.Printf("Bundle '%s' is used by: %s\n", bundleName, strings.Join(users, ", "))
		}
		if !confirm(fmt.Sprintf("Delete bundle '%s' and remove it from every board configuration?", bundleName)) {
			return fmt.Errorf("aborted")
		}
		return bundle.NewLifecycle(w.store).Delete(projectName, bundleName)
	},
}

var listCmd = &cobra.Command{
	Use:   "list <project>",
	Short: "List the project's effective bundles and their contents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := newWorkspace()
		if err != nil {
			return err
		}
		infos, err := bundle.List(w.store, w.workRoot, args[0])
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			pterm.Info.Printf("Project '%s' has no effective bundles\n", args[0])
			return nil
		}

		table := pterm.TableData{{"Bundle", "Patches", "Overrides", "Applied"}}
		for _, info := range infos {
			table = append(table, []string{
				info.Name,
				fmt.Sprintf("%d", len(info.Patches)),
				fmt.Sprintf("%d", len(info.Overrides)),
				appliedMark(info),
			})
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(table).Render(); err != nil {
			return err
		}
		if verbosity > 0 {
			for _, info := range infos {
				pterm.DefaultSection.Println(info.Name)
				for _, f := range info.Patches {
					pterm.Printf("  patch    %s\n", f)
				}
				for _, f := range info.Overrides {
					pterm.Printf("  override %s\n", f)
				}
			}
		}
		return nil
	},
}

func appliedMark(info bundle.Info) string {
	switch {
	case info.PatchApplied && info.OverrideApplied:
		return "patches+overrides"
	case info.PatchApplied:
		return "patches"
	case info.OverrideApplied:
		return "overrides"
	}
	return "-"
}

var buildCmd = &cobra.Command{
	Use:   "build <project>",
	Short: "Run the staged build pipeline for a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := newWorkspace()
		if err != nil {
			return err
		}
		registry, err := newHookRegistry()
		if err != nil {
			return err
		}
		p := pipeline.New(pipeline.Options{
			Store:  w.store,
			Engine: w.engine(),
			Executor: hooks.NewExecutor(registry, hooks.ExecutorOptions{
				StopOnError:      w.tool.StopOnError,
				FallbackToGlobal: true,
			}),
			WorkRoot:        w.workRoot,
			DefaultPlatform: w.tool.DefaultPlatform,
		})
		return p.Build(args[0])
	},
}

func init() {
	newCmd.Flags().StringArrayVar(&newFiles, "file", nil, "Capture only this file (repeatable, working-tree relative)")
	newCmd.Flags().BoolVar(&newUpdate, "update", false, "Update an existing bundle instead of creating one")
}
