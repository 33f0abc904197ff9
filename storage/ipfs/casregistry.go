package ipfs

import (
	"flag"
	"os"

	"github.com/InterCooperative-Network/icn-v2-sub001/storage"
	"github.com/InterCooperative-Network/icn-v2-sub001/storage/casregistry"
)

var (
	flagBin  string
	flagPath string
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "Local Kubo CLI CAS (raw blocks in the local IPFS repo)",
		Usage:       casregistry.UsageCLI,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagBin, "ipfs-bin", "", "Path to the ipfs binary (for --backend=ipfs)")
			fs.StringVar(&flagPath, "ipfs-path", "", "IPFS_PATH repo directory (for --backend=ipfs)")
		},
		Open: func() (storage.CAS, func() error, error) {
			var env []string
			if flagPath != "" {
				env = append(os.Environ(), "IPFS_PATH="+flagPath)
			}
			return New(Options{Bin: flagBin, Env: env}), nil, nil
		},
	})
}
