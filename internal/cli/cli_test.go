package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/readiness/internal/adapters/csvfile"
	"github.com/okian/readiness/internal/adapters/repository"
	service "github.com/okian/readiness/internal/app"
	"github.com/okian/readiness/internal/config"
	"github.com/okian/readiness/internal/domain/model"
	"github.com/okian/readiness/internal/domain/types"
	"github.com/okian/readiness/pkg/logger"
)

func init() {
	_ = logger.Init(logger.WithWriter(io.Discard))
}

// run executes the root command with args and returns its stdout.
func run(args ...string) (string, error) {
	root := NewRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func clearEnv(t *testing.T) {
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, config.EnvPrefix) {
			t.Setenv(name, "")
			_ = os.Unsetenv(name)
		}
	}
}

// athleteNamed looks up an athlete id in a written roster.
func athleteNamed(dir, name string) string {
	f, err := os.Open(filepath.Join(dir, "roster.csv"))
	if err != nil {
		return ""
	}
	defer f.Close()
	roster, err := csvfile.ReadRoster(f)
	if err != nil {
		return ""
	}
	for _, a := range roster {
		if a.Name == name {
			return a.ID
		}
	}
	return ""
}

func TestSynthAndEvaluate(t *testing.T) {
	convey.Convey("Given a synthetic dataset on disk", t, func() {
		clearEnv(t)
		dir := t.TempDir()
		out, err := run("synth", "--athletes", "5", "--days", "35", "--start", "2026-03-01", "--seed", "42", "--out-dir", dir)
		convey.So(err, convey.ShouldBeNil)
		convey.So(out, convey.ShouldContainSubstring, "wrote 5 athletes")
		roster := filepath.Join(dir, "roster.csv")
		records := filepath.Join(dir, "records.csv")

		convey.Convey("When evaluating to CSV without a date", func() {
			out, err := run("evaluate", "--roster", roster, "--records", records)

			convey.Convey("Then the latest record day should be evaluated for every athlete", func() {
				convey.So(err, convey.ShouldBeNil)
				lines := strings.Split(strings.TrimSpace(out), "\n")
				convey.So(lines, convey.ShouldHaveLength, 6)
				convey.So(lines[0], convey.ShouldEqual, strings.Join(csvfile.StatusColumns, ","))
				for _, l := range lines[1:] {
					convey.So(l, convey.ShouldContainSubstring, ",2026-04-04,")
				}
			})
		})

		convey.Convey("When evaluating to a JSON file backed by SQLite", func() {
			outPath := filepath.Join(dir, "statuses.json")
			dbPath := filepath.Join(dir, "readiness.db")
			_, err := run("evaluate", "--roster", roster, "--records", records,
				"--date", "2026-04-04", "--format", "json", "--out", outPath, "--db", dbPath)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the load spike athlete should be RED", func() {
				b, err := os.ReadFile(outPath)
				convey.So(err, convey.ShouldBeNil)
				var statuses []types.DailyStatus
				convey.So(json.Unmarshal(b, &statuses), convey.ShouldBeNil)
				convey.So(statuses, convey.ShouldHaveLength, 5)

				spike := athleteNamed(dir, "Athlete 002")
				found := false
				for _, st := range statuses {
					if st.AthleteID == spike {
						found = true
						convey.So(st.Status, convey.ShouldEqual, types.StatusRed)
						convey.So(st.Resolution.Rule, convey.ShouldEqual, types.RuleHighRiskFlag)
					}
				}
				convey.So(found, convey.ShouldBeTrue)
			})

			convey.Convey("Then the statuses should be persisted", func() {
				store, err := repository.OpenSQLite(context.Background(), dbPath)
				convey.So(err, convey.ShouldBeNil)
				defer store.Close()
				day, _ := model.ParseDay("2026-04-04")
				stored, err := store.StatusesOn(context.Background(), day)
				convey.So(err, convey.ShouldBeNil)
				convey.So(stored, convey.ShouldHaveLength, 5)
			})
		})

		convey.Convey("When a records file has a malformed row", func() {
			bad := filepath.Join(dir, "bad.csv")
			convey.So(os.WriteFile(bad, []byte("athlete_id,date,domain,field,value\n"+
				athleteNamed(dir, "Athlete 001")+",2026-03-01,load,player_load,lots\n"), 0o600), convey.ShouldBeNil)
			out, err := run("evaluate", "--roster", roster, "--records", bad, "--date", "2026-03-01")

			convey.Convey("Then it should be skipped and the run should still succeed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(strings.Count(out, "UNAVAILABLE"), convey.ShouldEqual, 5)
			})
		})
	})
}

func TestEvaluateErrors(t *testing.T) {
	convey.Convey("Given the evaluate command", t, func() {
		clearEnv(t)

		cases := []struct {
			name string
			args []string
		}{
			{"missing files", []string{"evaluate"}},
			{"a bad date", []string{"evaluate", "--roster", "r.csv", "--records", "c.csv", "--date", "04/04/2026"}},
			{"an unknown format", []string{"evaluate", "--roster", "r.csv", "--records", "c.csv", "--format", "xml"}},
			{"a missing roster file", []string{"evaluate", "--roster", filepath.Join(t.TempDir(), "none.csv"), "--records", "c.csv"}},
		}
		for _, c := range cases {
			convey.Convey("When run with "+c.name, func() {
				_, err := run(c.args...)
				convey.So(err, convey.ShouldNotBeNil)
			})
		}

		convey.Convey("When the config file is invalid", func() {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			convey.So(os.WriteFile(path, []byte("window:\n  acute_days: 30\n"), 0o600), convey.ShouldBeNil)
			_, err := run("--config", path, "evaluate", "--roster", "r.csv", "--records", "c.csv")
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

func TestSynthErrors(t *testing.T) {
	convey.Convey("Given the synth command", t, func() {
		_, err := run("synth", "--athletes", "0", "--out-dir", t.TempDir())
		convey.So(err, convey.ShouldNotBeNil)

		_, err = run("synth", "--start", "yesterday", "--out-dir", t.TempDir())
		convey.So(err, convey.ShouldNotBeNil)

		start, err := startDay("", 7)
		convey.So(err, convey.ShouldBeNil)
		convey.So(start.AddDate(0, 0, 6), convey.ShouldEqual, model.Day(time.Now().UTC()))
	})
}

func TestServeAndReplay(t *testing.T) {
	convey.Convey("Given a running server", t, func() {
		clearEnv(t)
		ctx, cancel := context.WithCancel(context.Background())
		cfg := config.New(ctx)
		cfg.WorkerCount = 2

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		convey.So(err, convey.ShouldBeNil)
		url := "http://" + ln.Addr().String()

		done := make(chan error, 1)
		go func() { done <- serve(ctx, cfg, ln) }()
		stopped := false
		convey.Reset(func() {
			if !stopped {
				cancel()
				<-done
			}
		})

		up := false
		for i := 0; i < 100 && !up; i++ {
			if resp, err := http.Get(url + "/healthz"); err == nil {
				resp.Body.Close()
				up = resp.StatusCode == http.StatusOK
			}
			if !up {
				time.Sleep(20 * time.Millisecond)
			}
		}
		convey.So(up, convey.ShouldBeTrue)

		convey.Convey("When fetching the API docs", func() {
			resp, err := http.Get(url + "/openapi.yaml")
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("When replaying a synthetic dataset", func() {
			dir := t.TempDir()
			_, err := run("synth", "--athletes", "5", "--days", "30", "--start", "2026-03-01", "--out-dir", dir)
			convey.So(err, convey.ShouldBeNil)

			out, err := run("replay", "--url", url, "--dir", dir, "--workers", "4", "--timeout", "5s")

			convey.Convey("Then every athlete should get a status", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "failed 0")
				convey.So(out, convey.ShouldContainSubstring, "5 statuses")
			})
		})

		convey.Convey("When the context is cancelled", func() {
			cancel()
			stopped = true
			select {
			case err := <-done:
				convey.So(err, convey.ShouldBeNil)
			case <-time.After(5 * time.Second):
				convey.So("serve did not stop", convey.ShouldBeEmpty)
			}
		})
	})
}

func TestServeListenError(t *testing.T) {
	convey.Convey("Given an address already in use", t, func() {
		clearEnv(t)
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		convey.So(err, convey.ShouldBeNil)
		defer ln.Close()

		_, err = run("serve", "--addr", ln.Addr().String())
		convey.So(err, convey.ShouldNotBeNil)
	})
}

func TestUpdateServiceMetrics(t *testing.T) {
	convey.Convey("Given a service", t, func() {
		svc := service.New()

		convey.Convey("Then updating metrics should not panic", func() {
			convey.So(func() { updateServiceMetrics(context.Background(), svc) }, convey.ShouldNotPanic)
		})

		convey.Convey("Then the updater should return when its context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			convey.So(func() { startServiceMetricsUpdater(ctx, svc) }, convey.ShouldNotPanic)
		})
	})
}
