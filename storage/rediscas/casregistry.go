package rediscas

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/InterCooperative-Network/icn-v2-sub001/storage"
	"github.com/InterCooperative-Network/icn-v2-sub001/storage/casregistry"
)

var (
	flagAddr     string
	flagPassword string
	flagDB       int
	flagTimeout  time.Duration
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "redis",
		Description: "Redis CAS (shared cluster store)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagAddr, "redis-addr", "", "Redis host:port (for --backend=redis)")
			fs.StringVar(&flagPassword, "redis-password", "", "Redis password (for --backend=redis)")
			fs.IntVar(&flagDB, "redis-db", 0, "Redis logical database (for --backend=redis)")
			fs.DurationVar(&flagTimeout, "redis-timeout", 0, "Per-operation timeout (for --backend=redis)")
		},
		Open: func() (storage.CAS, func() error, error) {
			addr := strings.TrimSpace(flagAddr)
			if addr == "" {
				return nil, nil, fmt.Errorf("missing --redis-addr")
			}
			cas, err := New(Options{Addr: addr, Password: flagPassword, DB: flagDB, Timeout: flagTimeout})
			if err != nil {
				return nil, nil, err
			}
			return cas, cas.Close, nil
		},
	})
}
