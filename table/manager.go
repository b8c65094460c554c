package table

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handle is a typed reference to a registered table
type Handle uint16

// InvalidHandle is never allocated
const InvalidHandle Handle = 0

// String returns a string representation of the handle
func (h Handle) String() string {
	return fmt.Sprintf("table:%d", uint16(h))
}

// Options contains configuration options for the table manager
type Options struct {
	// MaxTables bounds the number of registered tables
	MaxTables int

	// Logger receives load and activation records
	Logger zerolog.Logger

	// Now stamps activations; defaults to time.Now
	Now func() time.Time
}

// DefaultOptions returns the table manager defaults
func DefaultOptions() Options {
	return Options{
		MaxTables: 128,
		Logger:    zerolog.Nop(),
		Now:       time.Now,
	}
}

// Info describes a registered table
type Info struct {
	Name        string
	Owner       string
	Size        int
	Loaded      bool
	CRC         uint32
	Source      string
	LastUpdate  time.Time
	UpdateCount uint32
	Pending     bool
	Holders     int
}

// registry is the manager's record of one table
type registry struct {
	name     string
	owner    string
	schema   *Schema
	validate ValidateFunc

	active       *Image
	activeSource string
	lastUpdate   time.Time
	updateCount  uint32

	// Validated image waiting for Manage with no holders
	staged       *Image
	stagedSource string

	// Load queued by RequestLoad, run by the next Manage
	requested Source

	holders int
}

// Manager owns every registered table
type Manager struct {
	opts Options
	log  zerolog.Logger

	mu     sync.Mutex
	tables []*registry
	names  map[string]Handle
}

// NewManager creates a new table manager
func NewManager(opts Options) *Manager {
	defaults := DefaultOptions()
	if opts.MaxTables <= 0 {
		opts.MaxTables = defaults.MaxTables
	}
	if opts.Now == nil {
		opts.Now = defaults.Now
	}

	return &Manager{
		opts:  opts,
		log:   opts.Logger.With().Str("component", "table").Logger(),
		names: make(map[string]Handle),
	}
}

// Register adds a table owned by owner. A nil validate rejects values above
// each field's declared Max with OutOfRangeCode.
func (m *Manager) Register(owner string, schema *Schema, validate ValidateFunc) (Handle, error) {
	if err := schema.Validate(); err != nil {
		return InvalidHandle, err
	}
	if validate == nil {
		validate = BoundsValidator(OutOfRangeCode)
	}

	name := owner + "." + schema.Name

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.names[name]; exists {
		return InvalidHandle, fmt.Errorf("%w: %s", ErrDuplicateTable, name)
	}
	if len(m.tables) >= m.opts.MaxTables {
		return InvalidHandle, fmt.Errorf("%w: %d", ErrMaxTables, m.opts.MaxTables)
	}

	m.tables = append(m.tables, &registry{
		name:     name,
		owner:    owner,
		schema:   schema,
		validate: validate,
	})
	h := Handle(len(m.tables))
	m.names[name] = h

	m.log.Debug().Str("table", name).Int("size", schema.Size()).Msg("table registered")
	return h, nil
}

// HandleByName looks up a table by its qualified name (owner.schema)
func (m *Manager) HandleByName(name string) (Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.names[name]
	return h, ok
}

// Load reads and validates a candidate image. A rejected candidate leaves
// the active image in place. The first accepted image becomes active at
// once; later ones are staged until Manage runs with no outstanding holders.
func (m *Manager) Load(h Handle, src Source) error {
	reg, err := m.registry(h)
	if err != nil {
		return err
	}

	img, err := src.Read(reg.schema)
	if err != nil {
		m.log.Warn().Err(err).Str("table", reg.name).Str("source", src.String()).Msg("table load failed")
		return fmt.Errorf("%w: %s from %s: %w", ErrLoadFailed, reg.name, src, err)
	}

	if err := reg.validate(img); err != nil {
		m.log.Warn().Err(err).Str("table", reg.name).Str("source", src.String()).Msg("table validation failed")
		return &ValidationError{Table: reg.name, Source: src.String(), Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if reg.active == nil {
		m.activateLocked(reg, img, src.String())
		return nil
	}

	reg.staged = img
	reg.stagedSource = src.String()
	m.log.Debug().Str("table", reg.name).Str("source", src.String()).Msg("table image staged")
	return nil
}

// RequestLoad queues a load that the next Manage performs. It is safe to
// call from any goroutine; a newer request replaces an unserviced one.
func (m *Manager) RequestLoad(h Handle, src Source) error {
	reg, err := m.registry(h)
	if err != nil {
		return err
	}

	m.mu.Lock()
	reg.requested = src
	m.mu.Unlock()

	m.log.Debug().Str("table", reg.name).Str("source", src.String()).Msg("table load requested")
	return nil
}

// Manage completes pending work for the table: a requested load is read and
// validated, and a staged image is activated once nothing holds the table.
func (m *Manager) Manage(h Handle) error {
	reg, err := m.registry(h)
	if err != nil {
		return err
	}

	m.mu.Lock()
	requested := reg.requested
	reg.requested = nil
	m.mu.Unlock()

	var loadErr error
	if requested != nil {
		loadErr = m.Load(h, requested)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if reg.staged != nil {
		if reg.holders > 0 {
			m.log.Debug().Str("table", reg.name).Int("holders", reg.holders).Msg("activation deferred")
		} else {
			m.activateLocked(reg, reg.staged, reg.stagedSource)
			reg.staged = nil
			reg.stagedSource = ""
		}
	}
	return loadErr
}

func (m *Manager) activateLocked(reg *registry, img *Image, source string) {
	reg.active = img
	reg.activeSource = source
	reg.lastUpdate = m.opts.Now()
	reg.updateCount++

	m.log.Info().
		Str("table", reg.name).
		Str("source", source).
		Str("crc", fmt.Sprintf("0x%08X", img.CRC())).
		Msg("table image activated")
}

// GetAddress returns the active image and records a holder. Every
// successful call must be paired with ReleaseAddress.
func (m *Manager) GetAddress(h Handle) (*Image, error) {
	reg, err := m.registry(h)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if reg.active == nil {
		return nil, fmt.Errorf("%w: %s", ErrNeverLoaded, reg.name)
	}
	reg.holders++
	return reg.active, nil
}

// ReleaseAddress drops a holder recorded by GetAddress
func (m *Manager) ReleaseAddress(h Handle) error {
	reg, err := m.registry(h)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if reg.holders == 0 {
		return fmt.Errorf("%w: %s", ErrNotHeld, reg.name)
	}
	reg.holders--
	return nil
}

// Acquire returns a guard holding the active image
func (m *Manager) Acquire(h Handle) (*Guard, error) {
	img, err := m.GetAddress(h)
	if err != nil {
		return nil, err
	}
	return &Guard{mgr: m, handle: h, image: img}, nil
}

// Info returns a description of the table
func (m *Manager) Info(h Handle) (Info, error) {
	reg, err := m.registry(h)
	if err != nil {
		return Info{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	info := Info{
		Name:        reg.name,
		Owner:       reg.owner,
		Size:        reg.schema.Size(),
		Loaded:      reg.active != nil,
		Source:      reg.activeSource,
		LastUpdate:  reg.lastUpdate,
		UpdateCount: reg.updateCount,
		Pending:     reg.staged != nil || reg.requested != nil,
		Holders:     reg.holders,
	}
	if reg.active != nil {
		info.CRC = reg.active.CRC()
	}
	return info, nil
}

func (m *Manager) registry(h Handle) (*registry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h == InvalidHandle || int(h) > len(m.tables) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHandle, h)
	}
	return m.tables[h-1], nil
}

// Guard holds a table image until Release
type Guard struct {
	mgr    *Manager
	handle Handle
	image  *Image
	once   sync.Once
}

// Image returns the held image
func (g *Guard) Image() *Image {
	return g.image
}

// Release drops the hold. Calling it more than once is harmless.
func (g *Guard) Release() error {
	var err error
	g.once.Do(func() {
		err = g.mgr.ReleaseAddress(g.handle)
	})
	return err
}
