package probe

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/seq"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/swd"
)

// Settings is the configuration a command processor shares with the port.
// It is read on every operation, so fields may change between calls.
type Settings struct {
	ClockHz    uint32     `json:"clock_hz"`
	Turnaround int        `json:"swd_turnaround"`
	DataPhase  bool       `json:"swd_data_phase"`
	IdleCycles int        `json:"idle_cycles"`
	Chain      jtag.Chain `json:"jtag_chain"`
}

// DefaultSettings returns the power-on configuration.
func DefaultSettings() Settings {
	return Settings{
		ClockHz:    seq.DefaultClockHz,
		Turnaround: swd.DefaultConfig.Turnaround,
		Chain:      jtag.Chain{IRLength: append([]int(nil), jtag.DefaultChain.IRLength...)},
	}
}

// Validate reports settings no transport could use.
func (s Settings) Validate() error {
	if err := (swd.Config{Turnaround: s.Turnaround, IdleCycles: s.IdleCycles}).Validate(); err != nil {
		return err
	}
	return s.Chain.Validate()
}

// ConfigPath returns the default settings file location.
func ConfigPath() (string, error) {
	if dir := os.Getenv("APPDATA"); dir != "" {
		return filepath.Join(dir, "OpenTraceProbe", "settings.json"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "opentraceprobe", "settings.json"), nil
}

// LoadSettings reads settings from path, or from ConfigPath when path is
// empty. A missing file yields the defaults. Fields absent from the file keep
// their default values.
func LoadSettings(path string) (*Settings, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			s := DefaultSettings()
			return &s, err
		}
		path = p
	}

	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &s, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("settings %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("settings %s: %w", path, err)
	}
	return &s, nil
}

// SaveSettings writes s to path, or to ConfigPath when path is empty.
func SaveSettings(path string, s *Settings) error {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
