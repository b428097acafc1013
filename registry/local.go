package registry

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/rs/zerolog"

	"xdao.co/nfa/cidutil"
	"xdao.co/nfa/descriptor"
	"xdao.co/nfa/storage"
)

// EventsFile is the name of the event log inside a Local registry directory.
const EventsFile = "events.jsonl"

type LocalOptions struct {
	// Dir holds the event log. Required.
	Dir string
	// CAS stores canonical descriptor bytes. Required.
	CAS storage.CAS
	// Factory is the creator address used for contract address derivation.
	// Defaults to an address derived from Dir's absolute path.
	Factory Address
	Logger  zerolog.Logger
	Now     func() time.Time
}

// Local is an offline Registry. It is safe for concurrent use within one
// process; the log is not locked against other processes.
type Local struct {
	dir     string
	cas     storage.CAS
	factory Address
	log     zerolog.Logger
	now     func() time.Time

	mu     sync.Mutex
	events []ContractCreated
	byAddr map[Address]int
	// byVersion maps name + "\x00" + versionId to the event index.
	byVersion map[string]int
}

var _ Registry = (*Local)(nil)

// OpenLocal opens or creates a registry in opts.Dir and replays its log.
func OpenLocal(opts LocalOptions) (*Local, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("%w: registry directory is required", ErrInvalidRequest)
	}
	if opts.CAS == nil {
		return nil, fmt.Errorf("%w: descriptor store is required", ErrInvalidRequest)
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, err
	}
	if opts.Factory.IsZero() {
		abs, err := filepath.Abs(opts.Dir)
		if err != nil {
			return nil, err
		}
		opts.Factory = addressFromSeed([]byte("nfa-local-factory:" + abs))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := &Local{
		dir:       opts.Dir,
		cas:       opts.CAS,
		factory:   opts.Factory,
		log:       opts.Logger.With().Str("component", "registry").Logger(),
		now:       opts.Now,
		byAddr:    map[Address]int{},
		byVersion: map[string]int{},
	}
	if err := l.replay(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Local) Factory() Address { return l.factory }

func (l *Local) replay() error {
	f, err := os.Open(filepath.Join(l.dir, EventsFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var ev ContractCreated
		if err := json.Unmarshal(b, &ev); err != nil {
			return fmt.Errorf("registry: %s line %d: %w", EventsFile, line, err)
		}
		l.index(ev)
	}
	if err := sc.Err(); err != nil {
		return err
	}
	l.log.Debug().Int("events", len(l.events)).Str("dir", l.dir).Msg("registry opened")
	return nil
}

func (l *Local) index(ev ContractCreated) {
	i := len(l.events)
	l.events = append(l.events, ev)
	l.byAddr[ev.Contract] = i
	l.byVersion[versionKey(ev.Name, ev.VersionID)] = i
}

func versionKey(name, versionID string) string { return name + "\x00" + versionID }

func (l *Local) CreateNFAContract(ctx context.Context, name, symbol string, app descriptor.AppInfo, version descriptor.VersionInfo, owner Address) (Address, error) {
	name = strings.TrimSpace(name)
	symbol = strings.TrimSpace(symbol)
	switch {
	case name == "":
		return Address{}, fmt.Errorf("%w: contract name is required", ErrInvalidRequest)
	case symbol == "":
		return Address{}, fmt.Errorf("%w: contract symbol is required", ErrInvalidRequest)
	case owner.IsZero():
		return Address{}, fmt.Errorf("%w: owner must not be the zero address", ErrInvalidAddress)
	case app.IsZero():
		return Address{}, fmt.Errorf("%w: appInfo is required", ErrInvalidRequest)
	case !app.VersionInfo().Equal(version):
		return Address{}, fmt.Errorf("%w: versionInfo differs from the one appInfo carries", ErrInvalidRequest)
	}

	canonical, err := descriptor.Canonical(app)
	if err != nil {
		return Address{}, err
	}
	id, err := cidutil.RawSHA256(canonical)
	if err != nil {
		return Address{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Conflicts are settled before anything is stored.
	if i, ok := l.byVersion[versionKey(name, version.VersionID())]; ok {
		prev := l.events[i]
		if prev.Descriptor == id.String() && prev.Symbol == symbol && prev.Owner == owner {
			l.log.Info().Str("contract", prev.Contract.String()).Str("name", name).
				Str("version", prev.VersionID).Msg("contract already registered")
			return prev.Contract, nil
		}
		return Address{}, fmt.Errorf("%w: %s %s is %s (codeHash %s)", ErrVersionConflict, name, prev.VersionID, prev.Contract, prev.CodeHash.Bytes32())
	}

	stored, err := l.cas.Put(ctx, canonical)
	if err != nil {
		return Address{}, fmt.Errorf("registry: store descriptor: %w", err)
	}
	if stored != id {
		return Address{}, fmt.Errorf("registry: store descriptor: %w", storage.ErrCIDMismatch)
	}

	ev := ContractCreated{
		Seq:        uint64(len(l.events)),
		Owner:      owner,
		Name:       name,
		Symbol:     symbol,
		VersionID:  version.VersionID(),
		CodeHash:   version.CodeHash(),
		Descriptor: id.String(),
		CreatedAt:  l.now().UTC(),
	}
	ev.Contract = contractAddress(l.factory, owner, ev.Seq)
	if err := l.append(ev); err != nil {
		return Address{}, err
	}
	l.index(ev)
	l.log.Info().Str("contract", ev.Contract.String()).Str("owner", owner.String()).Str("name", name).
		Str("version", ev.VersionID).Str("descriptor", ev.Descriptor).Msg("contract created")
	return ev.Contract, nil
}

func (l *Local) append(ev ContractCreated) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(l.dir, EventsFile), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (l *Local) GetAppInfo(ctx context.Context, contract Address) (descriptor.AppInfo, error) {
	ev, err := l.event(contract)
	if err != nil {
		return descriptor.AppInfo{}, err
	}
	id, err := cid.Decode(ev.Descriptor)
	if err != nil {
		return descriptor.AppInfo{}, fmt.Errorf("registry: event for %s: %w", contract, err)
	}
	b, err := l.cas.Get(ctx, id)
	if err != nil {
		return descriptor.AppInfo{}, fmt.Errorf("registry: descriptor for %s: %w", contract, err)
	}
	app, err := descriptor.ParseAppInfo(b)
	if err != nil {
		return descriptor.AppInfo{}, fmt.Errorf("registry: descriptor for %s: %w", contract, err)
	}
	if got := app.VersionInfo().CodeHash(); got != ev.CodeHash {
		return descriptor.AppInfo{}, fmt.Errorf("registry: descriptor for %s commits to %s, event records %s", contract, got, ev.CodeHash)
	}
	return app, nil
}

// Event returns the creation event of contract.
func (l *Local) Event(contract Address) (ContractCreated, error) { return l.event(contract) }

func (l *Local) event(contract Address) (ContractCreated, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.byAddr[contract]
	if !ok {
		return ContractCreated{}, fmt.Errorf("%w: contract %s", ErrNotFound, contract)
	}
	return l.events[i], nil
}

func (l *Local) ContractsCreated(ctx context.Context) ([]ContractCreated, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ContractCreated, len(l.events))
	copy(out, l.events)
	return out, nil
}
