package audit

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/outofforest/nvstore/blocks"
	"github.com/outofforest/nvstore/blocks/home"
	"github.com/outofforest/nvstore/blocks/params"
	"github.com/outofforest/nvstore/status"
)

// Directory is the view of the partition directory required by the auditor.
type Directory interface {
	ReadHome() (home.Block, error)
	ReadPartition(id blocks.PartitionID, offset uint32, p []byte) error
	Seed() uint16
}

// Enforcement selects sub-blocks whose checksum mismatch fails the audit.
// Sub-blocks which are not enforced are still checked and reported.
type Enforcement [params.NumSubBlocks]bool

// DefaultEnforcement enforces every sub-block except date stamp and factory settings.
func DefaultEnforcement() Enforcement {
	var e Enforcement
	e[params.GeneralID] = true
	e[params.FiveWireID] = true
	e[params.VoltageID] = true
	return e
}

var subBlockFlags = [params.NumSubBlocks]status.Flags{
	status.FlagGeneral,
	status.FlagDateStamp,
	status.FlagFiveWire,
	status.FlagVoltage,
	status.FlagFactory,
}

// Check is the result of one checksum verification.
type Check struct {
	Name     string
	Valid    bool
	Enforced bool
	Computed uint16
	Stored   uint16
}

// Report is the result of an audit.
type Report struct {
	Home Check
	// SysParamsReadable is false if the system-parameter partition could not be used.
	SysParamsReadable bool
	SubBlocks         [params.NumSubBlocks]Check
	Flags             status.Flags
}

// Passed reports whether every enforced check passed.
func (r Report) Passed() bool {
	return r.Flags == 0
}

// Option configures the auditor.
type Option func(a *Auditor)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(a *Auditor) {
		a.log = log
	}
}

// Auditor re-reads the Home Record and the system parameters and recomputes their checksums.
type Auditor struct {
	dir     Directory
	enforce Enforcement
	log     *zap.Logger
}

// New returns new auditor.
func New(dir Directory, enforce Enforcement, opts ...Option) *Auditor {
	a := &Auditor{
		dir:     dir,
		enforce: enforce,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Audit runs the audit. Integrity problems are reported in the report, transport failures are returned.
func (a *Auditor) Audit() (Report, error) {
	seed := a.dir.Seed()

	var r Report
	h, err := a.dir.ReadHome()
	if err != nil {
		return Report{}, err
	}
	r.Home = Check{
		Name:     "home",
		Valid:    h.Magic == home.Magic && h.VerifyChecksum(seed) == nil,
		Enforced: true,
		Computed: h.ComputeChecksum(seed),
		Stored:   h.Checksum,
	}
	if !r.Home.Valid {
		r.Flags |= status.FlagHomeChecksum
	}

	raw := make([]byte, params.Size)
	err = a.dir.ReadPartition(blocks.SystemParametersPartition, 0, raw)
	switch {
	case err == nil:
		r.SysParamsReadable = true
	case errors.Is(err, blocks.ErrNotTrusted):
		r.Flags |= status.FlagNotTrusted
	default:
		return Report{}, err
	}

	if r.SysParamsReadable {
		b, err := params.Unmarshal(raw)
		if err != nil {
			return Report{}, err
		}
		for _, id := range params.AllSubBlocks {
			c := Check{
				Name:     id.String(),
				Valid:    b.Verify(id, seed) == nil,
				Enforced: a.enforce[id],
				Computed: b.ComputeChecksum(id, seed),
				Stored:   b.StoredChecksum(id),
			}
			r.SubBlocks[id] = c
			if c.Valid {
				continue
			}
			if !c.Enforced {
				a.log.Debug("Checksum mismatch in sub-block which is not enforced", zap.String("subBlock", c.Name))
				continue
			}
			r.Flags |= subBlockFlags[id]
		}
	}

	if r.Flags != 0 {
		r.Flags |= status.FlagAuditFailed
		a.log.Warn("Audit failed", zap.Uint16("flags", uint16(r.Flags)))
	}
	return r, nil
}
