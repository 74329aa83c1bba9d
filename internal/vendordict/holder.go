package vendordict

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/smallbiznis/quicksearch/internal/config"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

//go:embed data/dictionary.yaml
var defaultDictionary []byte

// Holder serves the current dictionary and swaps it atomically when the
// backing file changes. A reload that fails validation keeps the old one.
type Holder struct {
	current atomic.Pointer[Dictionary]
	source  string
	log     *zap.Logger
}

func NewHolder(cfg config.Config, log *zap.Logger) (*Holder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("vendordict")

	v := viper.New()
	v.SetConfigType("yaml")

	path := strings.TrimSpace(cfg.VendorDictionaryPath)
	source := "embedded"
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read vendor dictionary %s: %w", path, err)
		}
		source = path
	} else if err := v.ReadConfig(bytes.NewReader(defaultDictionary)); err != nil {
		return nil, fmt.Errorf("read embedded vendor dictionary: %w", err)
	}

	dict, err := decode(v)
	if err != nil {
		return nil, err
	}

	h := &Holder{source: source, log: log}
	h.current.Store(dict)
	log.Info("vendor dictionary loaded",
		zap.String("source", source),
		zap.Int("entries", len(dict.Entries)),
	)

	if path != "" {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decode(v)
			if err != nil {
				log.Warn("vendor dictionary reload rejected", zap.String("file", e.Name), zap.Error(err))
				return
			}
			h.current.Store(updated)
			log.Info("vendor dictionary reloaded", zap.String("file", e.Name), zap.Int("entries", len(updated.Entries)))
		})
		v.WatchConfig()
	}

	return h, nil
}

// Parse builds a dictionary from YAML content.
func Parse(content []byte) (*Dictionary, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, err
	}
	return decode(v)
}

// Default returns the dictionary shipped with the binary.
func Default() (*Dictionary, error) {
	return Parse(defaultDictionary)
}

func decode(v *viper.Viper) (*Dictionary, error) {
	var dict Dictionary
	if err := v.Unmarshal(&dict); err != nil {
		return nil, fmt.Errorf("decode vendor dictionary: %w", err)
	}
	if err := dict.build(); err != nil {
		return nil, err
	}
	return &dict, nil
}

func (h *Holder) Get() *Dictionary {
	return h.current.Load()
}

func (h *Holder) Source() string {
	return h.source
}

func (h *Holder) Resolve(vendor, offeredName, sku string) *Match {
	return h.Get().Resolve(vendor, offeredName, sku)
}

func (h *Holder) NormalizeVendor(vendor string) string {
	return h.Get().NormalizeVendor(vendor)
}
