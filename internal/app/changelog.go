package app

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/changelog"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/output"
)

var (
	changelogRefresh bool
	changelogHTML    bool
	changelogWidth   int

	changelogCmd = &cobra.Command{
		Use:   "changelog [version]",
		Short: "List releases or show the notes for one version",
		Long: `Without arguments, list the releases found in CHANGELOG.md at the
repository root, most recent first. Releases that mention security or
critical fixes are marked.

With a version argument, show the notes for that release. When the
changelog has no section for it, the component versions of the latest
release are shown instead.`,
		Example: `  themeupdater changelog
  themeupdater changelog 2.1.0
  themeupdater changelog 2.1.0 --html
  themeupdater changelog --refresh`,
		Args: cobra.MaximumNArgs(1),
		RunE: runChangelog,
	}
)

func init() {
	changelogCmd.Flags().BoolVar(&changelogRefresh, "refresh", false, "ignore the cached changelog")
	changelogCmd.Flags().BoolVar(&changelogHTML, "html", false, "print release notes as HTML")
	changelogCmd.Flags().IntVar(&changelogWidth, "width", 80, "wrap release notes at this width")

	RootCmd.AddCommand(changelogCmd)
}

func runChangelog(cmd *cobra.Command, args []string) error {
	u, err := openUpdater()
	if err != nil {
		return err
	}
	defer closeUpdater(u)

	ctx, cancel := operationContext(u)
	defer cancel()

	svc := u.Changelog()
	var entries []changelog.Entry
	if changelogRefresh {
		entries = svc.Refresh(ctx)
	} else {
		entries = svc.Entries(ctx)
	}

	if len(args) == 0 {
		if jsonOutput {
			return printJSON(map[string]any{"entries": entries})
		}
		fmt.Print(output.RenderChangelogTable(entries))
		return nil
	}

	version := args[0]
	markdown, found := svc.Markdown(ctx, version)

	if jsonOutput {
		return printJSON(map[string]any{
			"version":  version,
			"found":    found,
			"html":     svc.Details(ctx, version),
			"markdown": markdown,
		})
	}

	if changelogHTML || !found {
		// Component versions and the "no details" notice only exist as HTML.
		fmt.Println(svc.Details(ctx, version))
		return nil
	}

	style := output.StylePlain
	if isatty.IsTerminal(os.Stdout.Fd()) && output.IsColorEnabled() {
		style = output.DefaultMarkdownStyle()
	}
	render := output.NewMarkdownRenderer(style, changelogWidth)
	fmt.Printf("## %s\n\n", version)
	fmt.Println(render(markdown))
	return nil
}
