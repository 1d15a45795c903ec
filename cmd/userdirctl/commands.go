package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/patric-chuzhbe/userdir/internal/app"
	"github.com/patric-chuzhbe/userdir/internal/config"
	"github.com/patric-chuzhbe/userdir/internal/logger"
	"github.com/patric-chuzhbe/userdir/internal/models"
	"github.com/patric-chuzhbe/userdir/internal/service"
)

type rootOptions struct {
	apiURL        string
	favoritesFile string
	databaseDSN   string
	redisAddr     string
	pageSize      int
	logLevel      string
}

type listOptions struct {
	search    string
	sort      string
	minAge    int
	maxAge    int
	companies []string
	cities    []string
	page      int
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "userdirctl",
		Short:         "Browse the user directory and manage favorites",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.apiURL, "api-url", "u", "", "base URL of the remote users API")
	root.PersistentFlags().StringVarP(&opts.favoritesFile, "favorites-file", "f", "", "JSON file with the favorites storage")
	root.PersistentFlags().StringVarP(&opts.databaseDSN, "dsn", "d", "", "PostgreSQL DSN for the favorites storage")
	root.PersistentFlags().StringVarP(&opts.redisAddr, "redis", "r", "", "redis address for the favorites storage")
	root.PersistentFlags().IntVarP(&opts.pageSize, "page-size", "p", 0, "records per page")
	root.PersistentFlags().StringVarP(&opts.logLevel, "log-level", "l", "", "logger level")

	root.AddCommand(
		newListCommand(opts),
		newShowCommand(opts),
		newFavoritesCommand(opts),
	)

	return root
}

func newListCommand(root *rootOptions) *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List one page of users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), root, func(ctx context.Context, svc *service.Service) error {
				if err := svc.Load(ctx); err != nil {
					return fmt.Errorf("unable to fetch users: %w", err)
				}

				snapshot := svc.Search(ctx, opts.search)

				if opts.sort != "" {
					var err error
					snapshot, err = svc.Sort(ctx, opts.sort)
					if err != nil {
						return err
					}
				}

				if cmd.Flags().Changed("min-age") || cmd.Flags().Changed("max-age") ||
					len(opts.companies) > 0 || len(opts.cities) > 0 {
					snapshot = svc.Filter(ctx, models.AdvancedFilters{
						AgeRange:  [2]int{opts.minAge, opts.maxAge},
						Companies: opts.companies,
						Cities:    opts.cities,
					})
				}

				if opts.page > 1 {
					snapshot = svc.GoToPage(ctx, opts.page)
				}

				return printSnapshot(cmd.OutOrStdout(), snapshot)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.search, "search", "s", "", "case-insensitive search in name, email and username")
	cmd.Flags().StringVar(&opts.sort, "sort", "", "sort mode: none, name or age")
	cmd.Flags().IntVar(&opts.minAge, "min-age", models.DefaultMinAge, "minimum age, inclusive")
	cmd.Flags().IntVar(&opts.maxAge, "max-age", models.DefaultMaxAge, "maximum age, inclusive")
	cmd.Flags().StringSliceVar(&opts.companies, "company", nil, "only users of these companies")
	cmd.Flags().StringSliceVar(&opts.cities, "city", nil, "only users living in these cities")
	cmd.Flags().IntVar(&opts.page, "page", 1, "page number, clamped to the available pages")

	return cmd
}

func newShowCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show the details of one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}

			return withService(cmd.Context(), root, func(ctx context.Context, svc *service.Service) error {
				record, err := svc.UserDetail(ctx, id)
				var notFound *models.NotFoundError
				if errors.As(err, &notFound) {
					return notFound
				}
				if err != nil {
					return err
				}

				printRecord(cmd.OutOrStdout(), record, svc.Favorites(ctx).Contains(record.ID))

				return nil
			})
		},
	}
}

func newFavoritesCommand(root *rootOptions) *cobra.Command {
	fav := &cobra.Command{
		Use:   "fav",
		Short: "Manage favorite users",
	}

	fav.AddCommand(&cobra.Command{
		Use:   "toggle ID",
		Short: "Add a user to the favorites or remove it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil || id < 1 {
				return fmt.Errorf("invalid user id %q", args[0])
			}

			return withService(cmd.Context(), root, func(ctx context.Context, svc *service.Service) error {
				favorites, err := svc.ToggleFavorite(ctx, id)
				if err != nil {
					return err
				}

				state := "removed from"
				if favorites.Contains(id) {
					state = "added to"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "user %d %s favorites (%d total)\n", id, state, len(favorites))

				return nil
			})
		},
	})

	fav.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List favorite users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), root, func(ctx context.Context, svc *service.Service) error {
				favorites := svc.Favorites(ctx)
				if len(favorites) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No favorites yet.")
					return nil
				}

				users := svc.FavoriteUsers(ctx)
				if len(users) < len(favorites) {
					if err := svc.Load(ctx); err == nil {
						users = svc.FavoriteUsers(ctx)
					}
				}

				return printRecords(cmd.OutOrStdout(), users, favorites)
			})
		},
	})

	return fav
}

func (o *rootOptions) resolveConfig() (*config.Config, error) {
	cfg, err := config.New(config.WithDisableFlagsParsing(true))
	if err != nil {
		return nil, err
	}

	if o.apiURL != "" {
		cfg.APIBaseURL = o.apiURL
	}
	if o.favoritesFile != "" {
		cfg.FavoritesFile = o.favoritesFile
	}
	if o.databaseDSN != "" {
		cfg.DatabaseDSN = o.databaseDSN
	}
	if o.redisAddr != "" {
		cfg.RedisAddr = o.redisAddr
	}
	if o.pageSize > 0 {
		cfg.PageSize = o.pageSize
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	cfg.WatchFavoritesFile = false

	return cfg, nil
}

func withService(ctx context.Context, opts *rootOptions, run func(ctx context.Context, svc *service.Service) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := opts.resolveConfig()
	if err != nil {
		return err
	}

	if opts.logLevel != "" {
		if err := logger.Init(cfg.LogLevel); err != nil {
			return err
		}
	}

	theApp, err := app.NewWithConfig(cfg)
	if err != nil {
		return err
	}

	runErr := run(ctx, theApp.Service())

	if err := theApp.Shutdown(); err != nil && runErr == nil {
		return err
	}

	return runErr
}

func printSnapshot(out io.Writer, snapshot models.ViewSnapshot) error {
	if snapshot.Status == models.StatusFailed {
		return errors.New(snapshot.Error)
	}

	if err := printRecords(out, snapshot.Records, snapshot.Favorites); err != nil {
		return err
	}

	_, err := fmt.Fprintf(out, "page %d/%d, %d users match\n",
		snapshot.Query.CurrentPage, snapshot.TotalPages, snapshot.TotalFiltered)

	return err
}

func printRecords(out io.Writer, records []models.UserRecord, favorites models.FavoriteSet) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(out, "No users found.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\tID\tNAME\tAGE\tEMAIL\tCOMPANY\tCITY")
	for _, record := range records {
		star := ""
		if favorites.Contains(record.ID) {
			star = "*"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\t%s\t%s\n",
			star, record.ID, record.FullName(), record.Age, record.Email, record.Company.Name, record.Address.City)
	}

	return w.Flush()
}

func printRecord(out io.Writer, record models.UserRecord, favorite bool) {
	title := record.FullName()
	if favorite {
		title += " *"
	}

	fmt.Fprintln(out, title)
	fmt.Fprintln(out, strings.Repeat("-", len(title)))

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Username:\t%s\n", record.Username)
	fmt.Fprintf(w, "Email:\t%s\n", record.Email)
	fmt.Fprintf(w, "Phone:\t%s\n", record.Phone)
	fmt.Fprintf(w, "Age:\t%d\n", record.Age)
	fmt.Fprintf(w, "Birth date:\t%s\n", record.BirthDate)
	fmt.Fprintf(w, "Gender:\t%s\n", record.Gender)
	fmt.Fprintf(w, "Company:\t%s, %s\n", record.Company.Name, record.Company.Title)
	fmt.Fprintf(w, "Address:\t%s, %s, %s\n", record.Address.Street, record.Address.City, record.Address.State)
	fmt.Fprintf(w, "University:\t%s\n", record.University)
	_ = w.Flush()
}
