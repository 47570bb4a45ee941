package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"orderflow/internal/api"
	"orderflow/internal/daemonrun"
	"orderflow/internal/preflight"
	"orderflow/internal/store"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show order and outbox counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.Service) error {
				status, err := svc.Status(cmd.Context())
				if err != nil {
					return err
				}
				if pid := daemonrun.ReadPID(ctx.config); pid > 0 && processAlive(pid) {
					status.Running = true
					status.PID = pid
				}
				return ctx.emit(cmd, status, func() error {
					renderStats(cmd, status)
					return nil
				})
			})
		},
	}
}

func renderStats(cmd *cobra.Command, status api.StatusResponse) {
	out := cmd.OutOrStdout()
	p := newStatusPrinter(out)

	p.section("Daemon")
	if status.Running {
		p.line("Daemon", levelOK, "running (pid "+strconv.Itoa(status.PID)+")")
	} else {
		p.line("Daemon", levelWarn, "not running")
	}
	p.blank()

	h := status.Health
	p.section("Orders")
	p.line("Ready for work", levelInfo, strconv.Itoa(h.Ready))
	p.line("Assigned", levelInfo, strconv.Itoa(h.Assigned))
	p.line("Awaiting approval", countLevel(h.Review), strconv.Itoa(h.Review))
	p.line("In screening", countLevel(h.Screening), strconv.Itoa(h.Screening))
	p.line("Delivering", levelInfo, strconv.Itoa(h.Delivering))
	p.line("Delivered", levelOK, strconv.Itoa(h.Delivered))
	p.line("Closed", levelInfo, strconv.Itoa(h.Closed))

	if len(status.Orders) > 0 {
		fmt.Fprintln(out, renderTable([]string{"Status", "Orders"}, sortedCounts(status.Orders),
			[]columnAlignment{alignLeft, alignRight}))
	}
	if len(status.Outbox) > 0 {
		fmt.Fprintln(out, renderTable([]string{"Outbox", "Messages"}, sortedCounts(status.Outbox),
			[]columnAlignment{alignLeft, alignRight}))
	}
}

func countLevel(n int) level {
	if n > 0 {
		return levelWarn
	}
	return levelOK
}

func sortedCounts(counts map[string]int) [][]string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{key, strconv.Itoa(counts[key])})
	}
	return rows
}

func processAlive(pid int) bool {
	return unix.Kill(pid, 0) == nil
}

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, database and notification endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var results []preflight.Result
			storeErr := ctx.withStore(func(st *store.Store) error {
				results = preflight.RunAll(cmd.Context(), cfg, st)
				return nil
			})
			if storeErr != nil {
				results = preflight.RunAll(cmd.Context(), cfg, nil)
				for i := range results {
					if results[i].Name == "Database" {
						results[i].Detail = storeErr.Error()
					}
				}
			}
			if err := ctx.emit(cmd, results, func() error {
				p := newStatusPrinter(cmd.OutOrStdout())
				p.section("Preflight")
				for _, r := range results {
					lvl := levelOK
					if !r.Passed {
						lvl = levelError
					}
					p.line(r.Name, lvl, r.Detail)
				}
				return nil
			}); err != nil {
				return err
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				names := make([]string, 0, len(failed))
				for _, r := range failed {
					names = append(names, r.Name)
				}
				return fmt.Errorf("%d check(s) failed: %s", len(failed), strings.Join(names, ", "))
			}
			return nil
		},
	}
}
