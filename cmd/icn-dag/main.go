package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/InterCooperative-Network/icn-v2-sub001/authority"
	"github.com/InterCooperative-Network/icn-v2-sub001/credential"
	"github.com/InterCooperative-Network/icn-v2-sub001/dag"
	"github.com/InterCooperative-Network/icn-v2-sub001/dagstore"
	"github.com/InterCooperative-Network/icn-v2-sub001/identity"
	"github.com/InterCooperative-Network/icn-v2-sub001/lineage"
	"github.com/InterCooperative-Network/icn-v2-sub001/model"
	"github.com/InterCooperative-Network/icn-v2-sub001/query"
	"github.com/InterCooperative-Network/icn-v2-sub001/storage"
	"github.com/InterCooperative-Network/icn-v2-sub001/storage/casconfig"
	"github.com/InterCooperative-Network/icn-v2-sub001/storage/casregistry"
	"github.com/InterCooperative-Network/icn-v2-sub001/trustpolicy"

	// CAS backends register themselves for --backend.
	_ "github.com/InterCooperative-Network/icn-v2-sub001/storage/grpccas"
	_ "github.com/InterCooperative-Network/icn-v2-sub001/storage/ipfs"
	_ "github.com/InterCooperative-Network/icn-v2-sub001/storage/localfs"
	_ "github.com/InterCooperative-Network/icn-v2-sub001/storage/rediscas"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "node":
		return cmdNode(args[1:], out, errOut)
	case "scope":
		return cmdScope(args[1:], out, errOut)
	case "policy":
		return cmdPolicy(args[1:], out, errOut)
	case "quorum":
		return cmdQuorum(args[1:], out, errOut)
	case "federation":
		return cmdFederation(args[1:], out, errOut)
	case "credential":
		return cmdCredential(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "icn-dag: federation trust DAG CLI")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  icn-dag key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  icn-dag key derive --from <name> --role <role> [--force]")
	fmt.Fprintln(w, "  icn-dag key list")
	fmt.Fprintln(w, "  icn-dag key export --name <name> [--role <role>]")
	fmt.Fprintln(w, "  icn-dag node sign --type <t> --scope-type <st> --scope <id> --federation <id> (--signer <name> [--signer-role <r>] | --seed-hex <64hex> | --key-file <path>) [--parent <cid> ...] [--payload <file>] [--timestamp <unixms>]")
	fmt.Fprintln(w, "  icn-dag node append <file>")
	fmt.Fprintln(w, "  icn-dag node get <cid>")
	fmt.Fprintln(w, "  icn-dag node verify <cid> [--trust-policy <file>] [--live] [--timeout <dur>]")
	fmt.Fprintln(w, "  icn-dag scope view <scope-id> [--offset N] [--limit N]")
	fmt.Fprintln(w, "  icn-dag scope activity <scope-id> [--offset N] [--limit N]")
	fmt.Fprintln(w, "  icn-dag scope export <scope-id> [--out <bundle.tar>]")
	fmt.Fprintln(w, "  icn-dag scope import --in <bundle.tar>")
	fmt.Fprintln(w, "  icn-dag policy show <scope-id>")
	fmt.Fprintln(w, "  icn-dag quorum check <vote-cid>")
	fmt.Fprintln(w, "  icn-dag federation overview <federation-id>")
	fmt.Fprintln(w, "  icn-dag credential verify <file> [--trust-policy <file>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Store flags (store-touching commands):")
	fmt.Fprintln(w, "  --backend <name>      CAS backend (default localfs)")
	fmt.Fprintln(w, "  --cas-config <file>   CAS config file; overrides --backend")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - keys live under ~/.icn/keys/<name> (0600 seed files)")
	fmt.Fprintln(w, "  - node sign prints the signed node envelope JSON to stdout")
	fmt.Fprintln(w, "  - query output is JSON")
}

type storeFlags struct {
	backend   string
	casConfig string
}

func addStoreFlags(fs *flag.FlagSet, sf *storeFlags) {
	fs.StringVar(&sf.backend, "backend", "localfs",
		"CAS backend ("+strings.Join(casregistry.Names(casregistry.UsageCLI), ", ")+")")
	fs.StringVar(&sf.casConfig, "cas-config", "", "CAS config file; overrides --backend")
	casregistry.RegisterFlags(fs, casregistry.UsageCLI)
}

// openStore opens the configured CAS, wraps it in a DAG store and rebuilds
// indexes when the backend supports iteration.
func openStore(sf storeFlags, errOut io.Writer) (*dagstore.Store, func() error, bool) {
	var (
		cas     storage.CAS
		closeFn func() error
		err     error
	)
	if sf.casConfig != "" {
		cfg, cerr := casconfig.LoadFile(sf.casConfig)
		if cerr != nil {
			fmt.Fprintf(errOut, "cas config: %v\n", cerr)
			return nil, nil, false
		}
		cas, closeFn, err = cfg.Open(casregistry.UsageCLI, "")
	} else {
		cas, closeFn, err = casregistry.Open(sf.backend, casregistry.UsageCLI)
	}
	if err != nil {
		fmt.Fprintf(errOut, "open cas: %v\n", err)
		return nil, nil, false
	}
	st, err := dagstore.New(cas, dagstore.Options{})
	if err != nil {
		_ = closeFn()
		fmt.Fprintf(errOut, "store: %v\n", err)
		return nil, nil, false
	}
	if _, ok := cas.(storage.Iterable); ok {
		if err := st.Reindex(); err != nil {
			_ = closeFn()
			fmt.Fprintf(errOut, "reindex: %v\n", err)
			return nil, nil, false
		}
	}
	return st, closeFn, true
}

func loadTrustPolicy(path string, errOut io.Writer) (*trustpolicy.Policy, bool) {
	if path == "" {
		return nil, true
	}
	b, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(errOut, "read trust policy: %v\n", err)
		return nil, false
	}
	p, err := trustpolicy.Parse(b)
	if err != nil {
		fmt.Fprintf(errOut, "invalid trust policy: %v\n", err)
		return nil, false
	}
	return p, true
}

func printJSON(out io.Writer, v any) int {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return 1
	}
	return 0
}

func printCodedError(errOut io.Writer, err error) {
	b, merr := json.Marshal(model.Coded(err))
	if merr != nil {
		fmt.Fprintf(errOut, "%v\n", err)
		return
	}
	fmt.Fprintf(errOut, "%s\n", b)
}

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printKeyUsage(errOut)
		return 2
	}
	switch args[0] {
	case "init":
		return cmdKeyInit(args[1:], out, errOut)
	case "derive":
		return cmdKeyDerive(args[1:], out, errOut)
	case "list":
		return cmdKeyList(args[1:], out, errOut)
	case "export":
		return cmdKeyExport(args[1:], out, errOut)
	case "help", "-h", "--help":
		printKeyUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n\n", args[0])
		printKeyUsage(errOut)
		return 2
	}
}

func printKeyUsage(w io.Writer) {
	fmt.Fprintln(w, "icn-dag key: minimal local key management")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  icn-dag key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  icn-dag key derive --from <name> --role <role> [--force]")
	fmt.Fprintln(w, "  icn-dag key list")
	fmt.Fprintln(w, "  icn-dag key export --name <name> [--role <role>]")
}

func cmdKeyInit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key init", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var name string
	var seedHex string
	var force bool

	fs.StringVar(&name, "name", "", "Key name (directory under ~/.icn/keys)")
	fs.StringVar(&seedHex, "seed-hex", "", "Optional ed25519 seed as 64 hex chars (for reproducible demos)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	if err := identity.CheckKeyName(name); err != nil {
		fmt.Fprintf(errOut, "invalid --name: %v\n", err)
		return 2
	}
	ks, err := identity.CreateKeyStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}

	var seed []byte
	if seedHex != "" {
		var derr error
		seed, derr = identity.ParseSeedHex(seedHex)
		if derr != nil {
			fmt.Fprintf(errOut, "invalid --seed-hex: %v\n", derr)
			return 2
		}
	} else {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			fmt.Fprintf(errOut, "rand: %v\n", err)
			return 1
		}
	}

	did, rootPath, err := ks.InitializeRootKey(name, seed, force)
	if err != nil {
		fmt.Fprintf(errOut, "write key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created root key: %s\n", did)
	fmt.Fprintf(out, "Stored at: %s\n", rootPath)
	return 0
}

func cmdKeyDerive(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key derive", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var from string
	var role string
	var force bool

	fs.StringVar(&from, "from", "", "Root key name")
	fs.StringVar(&role, "role", "", "Role identifier (e.g. admin, operator)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if from == "" {
		fmt.Fprintln(errOut, "missing --from")
		return 2
	}
	if role == "" {
		fmt.Fprintln(errOut, "missing --role")
		return 2
	}
	ks, err := identity.CreateKeyStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	did, rolePath, err := ks.DeriveKeyFromRole(from, role, force)
	if err != nil {
		fmt.Fprintf(errOut, "derive role key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created role key: %s\n", did)
	fmt.Fprintf(out, "Stored at: %s\n", rolePath)
	return 0
}

func cmdKeyList(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key list", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ks, err := identity.CreateKeyStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	entries, err := ks.ListKeys()
	if err != nil {
		fmt.Fprintf(errOut, "list keys: %v\n", err)
		return 1
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s\n", e.Identifier)
		for _, r := range e.Roles {
			fmt.Fprintf(out, "  - %s\n", r)
		}
	}
	return 0
}

func cmdKeyExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key export", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var name string
	var role string

	fs.StringVar(&name, "name", "", "Key name")
	fs.StringVar(&role, "role", "", "Optional role (if set, exports the derived role key's DID)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	ks, err := identity.CreateKeyStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	did, err := ks.ExportKey(name, role)
	if err != nil {
		fmt.Fprintf(errOut, "export key: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, did)
	return 0
}

func cmdNode(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: icn-dag node <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: sign, append, get, verify")
		return 2
	}
	switch args[0] {
	case "sign":
		return cmdNodeSign(args[1:], out, errOut)
	case "append":
		return cmdNodeAppend(args[1:], out, errOut)
	case "get":
		return cmdNodeGet(args[1:], out, errOut)
	case "verify":
		return cmdNodeVerify(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown node subcommand: %s\n", args[0])
		return 2
	}
}

func cmdNodeSign(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("node sign", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var typ string
	var scopeType string
	var scopeID string
	var federationID string
	var payloadPath string
	var seedHex string
	var signerName string
	var signerRole string
	var keyFile string
	var timestamp int64
	var parents stringList

	fs.StringVar(&typ, "type", "", "Node type (e.g. Proposal, Vote, PolicyUpdate)")
	fs.StringVar(&scopeType, "scope-type", "", "Scope type: federation, cooperative or community")
	fs.StringVar(&scopeID, "scope", "", "Scope id")
	fs.StringVar(&federationID, "federation", "", "Federation id")
	fs.StringVar(&payloadPath, "payload", "", "Payload JSON file (default empty object)")
	fs.StringVar(&seedHex, "seed-hex", "", "ed25519 seed as 64 hex chars")
	fs.StringVar(&signerName, "signer", "", "Use a stored key by name (from 'icn-dag key init')")
	fs.StringVar(&signerRole, "signer-role", "", "When using --signer, use a derived role key")
	fs.StringVar(&keyFile, "key-file", "", "Path to a seed file created by 'icn-dag key init/derive'")
	fs.Int64Var(&timestamp, "timestamp", 0, "Unix milliseconds (default now)")
	fs.Var(&parents, "parent", "Parent node CID (repeatable)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if typ == "" || scopeType == "" || scopeID == "" || federationID == "" {
		fmt.Fprintln(errOut, "missing --type, --scope-type, --scope or --federation")
		return 2
	}
	if seedHex == "" && signerName == "" && keyFile == "" {
		fmt.Fprintln(errOut, "missing signer: use --seed-hex, --signer, or --key-file")
		return 2
	}

	ks, err := identity.CreateKeyStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	seed, err := ks.LoadSeed(seedHex, signerName, signerRole, keyFile)
	if err != nil {
		fmt.Fprintf(errOut, "invalid signer: %v\n", err)
		return 2
	}
	priv := ed25519.NewKeyFromSeed(seed)

	payload := json.RawMessage("{}")
	if payloadPath != "" {
		b, rerr := os.ReadFile(payloadPath)
		if rerr != nil {
			fmt.Fprintf(errOut, "read payload: %v\n", rerr)
			return 1
		}
		payload = json.RawMessage(b)
	}
	if timestamp == 0 {
		timestamp = time.Now().UnixMilli()
	}

	h := dag.Header{
		Format:       dag.FormatTag,
		Type:         dag.NodeType(typ),
		Timestamp:    timestamp,
		Parents:      parents,
		ScopeType:    dag.ScopeType(scopeType),
		ScopeID:      scopeID,
		FederationID: federationID,
		Author:       identity.DIDFromSeed(seed),
	}
	n, err := dag.Build(h, payload, priv)
	if err != nil {
		printCodedError(errOut, err)
		return 1
	}
	fmt.Fprintf(errOut, "Node-CID: %s\n", n.ID)
	return printJSON(out, n)
}

func cmdNodeAppend(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("node append", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf storeFlags
	addStoreFlags(fs, &sf)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: icn-dag node append [store flags] <file>")
		return 2
	}
	b, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read node: %v\n", err)
		return 1
	}
	var n dag.Node
	if err := json.Unmarshal(b, &n); err != nil {
		fmt.Fprintf(errOut, "parse node: %v\n", err)
		return 1
	}

	st, closeFn, ok := openStore(sf, errOut)
	if !ok {
		return 1
	}
	defer func() { _ = closeFn() }()

	if _, err := st.Append(context.Background(), &n); err != nil {
		printCodedError(errOut, err)
		return 1
	}
	_, _ = fmt.Fprintln(out, n.ID)
	return 0
}

func cmdNodeGet(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("node get", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf storeFlags
	addStoreFlags(fs, &sf)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: icn-dag node get [store flags] <cid>")
		return 2
	}

	st, closeFn, ok := openStore(sf, errOut)
	if !ok {
		return 1
	}
	defer func() { _ = closeFn() }()

	svc := query.New(st, authority.New(st))
	env, err := svc.Node(context.Background(), fs.Arg(0))
	if err != nil {
		printCodedError(errOut, err)
		return 1
	}
	if env == nil {
		fmt.Fprintln(errOut, "not found")
		return 1
	}
	return printJSON(out, env)
}

func cmdNodeVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("node verify", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf storeFlags
	var trustPath string
	var live bool
	var timeout time.Duration
	addStoreFlags(fs, &sf)
	fs.StringVar(&trustPath, "trust-policy", "", "Trust policy file (required for federation roots)")
	fs.BoolVar(&live, "live", false, "Additionally require every lineage author to hold a role now")
	fs.DurationVar(&timeout, "timeout", 30*time.Second, "Verification deadline")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: icn-dag node verify [store flags] [--trust-policy <file>] [--live] <cid>")
		return 2
	}
	trust, ok := loadTrustPolicy(trustPath, errOut)
	if !ok {
		return 2
	}

	st, closeFn, ok := openStore(sf, errOut)
	if !ok {
		return 1
	}
	defer func() { _ = closeFn() }()

	auth := authority.New(st, authority.WithTrustPolicy(trust))
	mode := lineage.EvalCreationTime
	if live {
		mode = lineage.EvalVerificationTime
	}
	v := lineage.New(st, auth, lineage.WithMode(mode))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	rep, err := v.Verify(ctx, fs.Arg(0))
	if err != nil {
		printCodedError(errOut, err)
		return 1
	}
	code := printJSON(out, rep)
	if code != 0 {
		return code
	}
	if !rep.Valid {
		return 1
	}
	return 0
}

func cmdScope(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: icn-dag scope <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: view, activity, export, import")
		return 2
	}
	sub := args[0]
	fs := flag.NewFlagSet("scope "+sub, flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf storeFlags
	var offset, limit int
	var outPath, inPath string
	addStoreFlags(fs, &sf)
	fs.IntVar(&offset, "offset", 0, "Pagination offset")
	fs.IntVar(&limit, "limit", 0, "Page size (default 100)")
	fs.StringVar(&outPath, "out", "", "Bundle output file (export; default stdout)")
	fs.StringVar(&inPath, "in", "", "Bundle input file (import)")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	if sub == "import" {
		if fs.NArg() != 0 || inPath == "" {
			fmt.Fprintln(errOut, "usage: icn-dag scope import [store flags] --in <bundle.tar>")
			return 2
		}
	} else if fs.NArg() != 1 {
		fmt.Fprintf(errOut, "usage: icn-dag scope %s [store flags] <scope-id>\n", sub)
		return 2
	}
	scopeID := fs.Arg(0)

	st, closeFn, ok := openStore(sf, errOut)
	if !ok {
		return 1
	}
	defer func() { _ = closeFn() }()

	svc := query.New(st, authority.New(st))
	page := query.Page{Offset: offset, Limit: limit}
	switch sub {
	case "view":
		view, err := svc.Scope(context.Background(), scopeID, page)
		if err != nil {
			printCodedError(errOut, err)
			return 1
		}
		return printJSON(out, view)
	case "activity":
		entries, total, err := svc.Activity(context.Background(), scopeID, page)
		if err != nil {
			printCodedError(errOut, err)
			return 1
		}
		return printJSON(out, map[string]any{
			"scopeId": scopeID,
			"total":   total,
			"offset":  offset,
			"entries": entries,
		})
	case "export":
		var w io.Writer = out
		if outPath != "" {
			fh, err := os.Create(outPath)
			if err != nil {
				fmt.Fprintf(errOut, "create %s: %v\n", outPath, err)
				return 1
			}
			defer func() { _ = fh.Close() }()
			w = fh
		}
		if err := st.ExportScope(w, scopeID); err != nil {
			printCodedError(errOut, err)
			return 1
		}
		if outPath != "" {
			fmt.Fprintf(errOut, "Exported scope %s to %s\n", scopeID, outPath)
		}
		return 0
	case "import":
		fh, err := os.Open(inPath)
		if err != nil {
			fmt.Fprintf(errOut, "open %s: %v\n", inPath, err)
			return 1
		}
		defer func() { _ = fh.Close() }()
		if err := st.ImportBundle(fh); err != nil {
			printCodedError(errOut, err)
			return 1
		}
		fmt.Fprintf(errOut, "Store now holds %d nodes\n", st.Len())
		return 0
	default:
		fmt.Fprintf(errOut, "unknown scope subcommand: %s\n", sub)
		return 2
	}
}

func cmdPolicy(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 || args[0] != "show" {
		fmt.Fprintln(errOut, "usage: icn-dag policy show [store flags] <scope-id>")
		return 2
	}
	fs := flag.NewFlagSet("policy show", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf storeFlags
	addStoreFlags(fs, &sf)
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: icn-dag policy show [store flags] <scope-id>")
		return 2
	}

	st, closeFn, ok := openStore(sf, errOut)
	if !ok {
		return 1
	}
	defer func() { _ = closeFn() }()

	svc := query.New(st, authority.New(st))
	insp, err := svc.Policy(context.Background(), fs.Arg(0))
	if err != nil {
		printCodedError(errOut, err)
		return 1
	}
	return printJSON(out, insp)
}

func cmdQuorum(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 || args[0] != "check" {
		fmt.Fprintln(errOut, "usage: icn-dag quorum check [store flags] <vote-cid>")
		return 2
	}
	fs := flag.NewFlagSet("quorum check", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf storeFlags
	addStoreFlags(fs, &sf)
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: icn-dag quorum check [store flags] <vote-cid>")
		return 2
	}

	st, closeFn, ok := openStore(sf, errOut)
	if !ok {
		return 1
	}
	defer func() { _ = closeFn() }()

	svc := query.New(st, authority.New(st))
	check, err := svc.Quorum(context.Background(), fs.Arg(0))
	if err != nil {
		printCodedError(errOut, err)
		return 1
	}
	code := printJSON(out, check)
	if code != 0 {
		return code
	}
	if !check.Report.Satisfied {
		return 1
	}
	return 0
}

func cmdFederation(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 || args[0] != "overview" {
		fmt.Fprintln(errOut, "usage: icn-dag federation overview [store flags] <federation-id>")
		return 2
	}
	fs := flag.NewFlagSet("federation overview", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf storeFlags
	addStoreFlags(fs, &sf)
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: icn-dag federation overview [store flags] <federation-id>")
		return 2
	}

	st, closeFn, ok := openStore(sf, errOut)
	if !ok {
		return 1
	}
	defer func() { _ = closeFn() }()

	svc := query.New(st, authority.New(st))
	ov, err := svc.Federation(context.Background(), fs.Arg(0))
	if err != nil {
		printCodedError(errOut, err)
		return 1
	}
	return printJSON(out, ov)
}

func cmdCredential(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 || args[0] != "verify" {
		fmt.Fprintln(errOut, "usage: icn-dag credential verify [store flags] [--trust-policy <file>] <file>")
		return 2
	}
	fs := flag.NewFlagSet("credential verify", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf storeFlags
	var trustPath string
	var timeout time.Duration
	addStoreFlags(fs, &sf)
	fs.StringVar(&trustPath, "trust-policy", "", "Trust policy file")
	fs.DurationVar(&timeout, "timeout", 30*time.Second, "Verification deadline")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: icn-dag credential verify [store flags] [--trust-policy <file>] <file>")
		return 2
	}
	trust, ok := loadTrustPolicy(trustPath, errOut)
	if !ok {
		return 2
	}
	raw, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read credential: %v\n", err)
		return 1
	}

	st, closeFn, ok := openStore(sf, errOut)
	if !ok {
		return 1
	}
	defer func() { _ = closeFn() }()

	auth := authority.New(st, authority.WithTrustPolicy(trust))
	v := credential.New(auth, lineage.New(st, auth), trust)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	rep, err := v.VerifyJSON(ctx, raw)
	if err != nil {
		printCodedError(errOut, err)
		return 1
	}
	code := printJSON(out, rep)
	if code != 0 {
		return code
	}
	if !rep.OverallValid {
		return 1
	}
	return 0
}
