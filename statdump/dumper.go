package statdump

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/kpool"
	"github.com/hupe1980/kpool/blobstore"
)

// Ext is the file extension of stored dumps.
const Ext = ".kpd"

const defaultInterval = 10 * time.Second

// Dumper periodically writes registry snapshots to a blob store.
type Dumper struct {
	reg         *kpool.Registry
	store       blobstore.Store
	prefix      string
	compression Compression
	keep        int
	interval    time.Duration
	host        string
	log         *kpool.Logger

	mu   sync.Mutex
	last int64
}

// Option configures a Dumper.
type Option func(*Dumper)

// WithPrefix sets the blob name prefix. Default: "dumps".
func WithPrefix(prefix string) Option {
	return func(d *Dumper) {
		d.prefix = strings.Trim(prefix, "/")
	}
}

// WithCompression sets the payload compression. Default: CompressionZSTD.
func WithCompression(c Compression) Option {
	return func(d *Dumper) {
		d.compression = c
	}
}

// WithRetention keeps only the newest n dumps. Zero keeps everything.
func WithRetention(n int) Option {
	return func(d *Dumper) {
		d.keep = n
	}
}

// WithInterval sets how often Run takes a snapshot.
func WithInterval(interval time.Duration) Option {
	return func(d *Dumper) {
		d.interval = interval
	}
}

// WithHost overrides the host name recorded in each dump.
func WithHost(host string) Option {
	return func(d *Dumper) {
		d.host = host
	}
}

// WithLogger sets the logger for write and retention failures.
func WithLogger(l *kpool.Logger) Option {
	return func(d *Dumper) {
		d.log = l
	}
}

// NewDumper creates a Dumper over reg. A nil reg means kpool.DefaultRegistry.
func NewDumper(reg *kpool.Registry, store blobstore.Store, opts ...Option) *Dumper {
	if reg == nil {
		reg = kpool.DefaultRegistry
	}
	d := &Dumper{
		reg:         reg,
		store:       store,
		prefix:      "dumps",
		compression: CompressionZSTD,
		interval:    defaultInterval,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.host == "" {
		d.host, _ = os.Hostname()
	}
	if d.log == nil {
		d.log = kpool.NoopLogger()
	}
	if d.interval <= 0 {
		d.interval = defaultInterval
	}
	return d
}

// Snapshot captures the registry without storing it.
func (d *Dumper) Snapshot() *Dump {
	return &Dump{
		Taken: time.Now().UTC(),
		Host:  d.host,
		Pools: d.reg.Snapshot(),
	}
}

// DumpOnce stores one snapshot, applies retention and returns the blob name.
func (d *Dumper) DumpOnce(ctx context.Context) (string, error) {
	dump := d.Snapshot()
	data, err := Encode(dump, d.compression)
	if err != nil {
		return "", err
	}

	name := d.name(dump.Taken)
	if err := d.store.Put(ctx, name, data); err != nil {
		return "", fmt.Errorf("statdump: put %s: %w", name, err)
	}

	if d.keep > 0 {
		if err := d.prune(ctx); err != nil {
			return name, err
		}
	}
	return name, nil
}

// Run dumps every interval until ctx is done. Individual failures are
// logged and do not stop the loop.
func (d *Dumper) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if name, err := d.DumpOnce(ctx); err != nil {
				d.log.WarnContext(ctx, "stat dump failed", "name", name, "error", err)
			} else {
				d.log.DebugContext(ctx, "stat dump written", "name", name)
			}
		}
	}
}

// name is zero-padded so lexical order matches time order. Two dumps in the
// same nanosecond get distinct names.
func (d *Dumper) name(t time.Time) string {
	d.mu.Lock()
	ts := max(t.UnixNano(), d.last+1)
	d.last = ts
	d.mu.Unlock()

	return path.Join(d.prefix, fmt.Sprintf("%020d%s", ts, Ext))
}

func (d *Dumper) prune(ctx context.Context) error {
	names, err := List(ctx, d.store, d.prefix)
	if err != nil {
		return err
	}
	for _, name := range names[:max(len(names)-d.keep, 0)] {
		if err := d.store.Delete(ctx, name); err != nil {
			return fmt.Errorf("statdump: delete %s: %w", name, err)
		}
	}
	return nil
}

// List returns the names of all dumps under prefix, oldest first.
func List(ctx context.Context, store blobstore.Store, prefix string) ([]string, error) {
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		prefix += "/"
	}
	all, err := store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	names := all[:0]
	for _, name := range all {
		if strings.HasSuffix(name, Ext) && !strings.Contains(name[len(prefix):], "/") {
			names = append(names, name)
		}
	}
	return names, nil
}

// Latest loads the newest dump under prefix.
func Latest(ctx context.Context, store blobstore.Store, prefix string) (*Dump, error) {
	names, err := List(ctx, store, prefix)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, blobstore.ErrNotFound
	}
	data, err := store.Get(ctx, names[len(names)-1])
	if err != nil {
		return nil, err
	}
	return Decode(data)
}
