package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/gren-lang/package-registry/internal/clock"
	"github.com/gren-lang/package-registry/internal/models"
	"github.com/gren-lang/package-registry/internal/pipeline"
	"github.com/gren-lang/package-registry/internal/store"
	"github.com/gren-lang/package-registry/internal/workspace"
)

// MigrateAction applies the embedded schema.
func MigrateAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Store.RunMigrations(ctx); err != nil {
		return err
	}
	fmt.Println("migrations applied")
	return nil
}

// SyncAction enqueues a discovery job for a package.
func SyncAction(ctx context.Context, cmd *cli.Command) error {
	name, url, err := syncTarget(cmd.String("name"), cmd.String("url"))
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	job, err := appCtx.Store.Enqueue(ctx, name, url, models.AnyVersion, models.StepFindMissingVersions)
	if errors.Is(err, store.ErrDuplicateKey) {
		return fmt.Errorf("an import of %s is already running", name)
	}
	if err != nil {
		return err
	}
	fmt.Printf("queued %s (%s) as job %s\n", name, url, job.ID)
	return nil
}

// syncTarget resolves the package name and remote from the flags. Either
// may be derived from the other.
func syncTarget(name, url string) (string, string, error) {
	switch {
	case name == "" && url == "":
		return "", "", errors.New("one of --name or --url is required")
	case url == "":
		u, err := models.GitHubURL(name)
		return name, u, err
	case name == "":
		n, err := models.NameFromURL(url)
		return n, url, err
	}
	n, err := models.ParsePackageName(name)
	return n, url, err
}

// JobsAction prints every job as a table.
func JobsAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	jobs, err := appCtx.Store.ListAll(ctx)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("0 jobs")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Name", "Version", "Step", "In Progress", "Retry", "Resume At", "Message")
	for _, j := range jobs {
		if err := table.Append(
			j.ID,
			j.Name,
			j.Version,
			j.StepCode(),
			fmt.Sprintf("%t", j.InProgress),
			fmt.Sprintf("%d", j.RetryCount),
			j.ResumeAt.Format(time.RFC3339),
			j.Message,
		); err != nil {
			return err
		}
	}
	return table.Render()
}

// SearchAction prints packages matching the query.
func SearchAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	results, err := appCtx.Store.Search(ctx, cmd.String("query"))
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("no packages found")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Name", "Version", "Summary")
	for _, r := range results {
		if err := table.Append(r.Name, r.Version, r.Summary); err != nil {
			return err
		}
	}
	return table.Render()
}

// ReapAction runs one reaper sweep.
func ReapAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	ws, err := workspace.New(appCtx.Config.WorkDir)
	if err != nil {
		return err
	}
	reaper := pipeline.NewReaper(appCtx.Store, ws, appCtx.Config.JobRetention, clock.Real{}, appCtx.Log)
	n, err := reaper.Sweep(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d finished jobs\n", n)
	return nil
}
