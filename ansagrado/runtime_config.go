package ansagrado

import (
	"context"
	"errors"
	"fmt"
	"github.com/Sitedirector05/Vesta-Technologies-Ansagrado-BASIC-Bot/datastore"
	"github.com/lmittmann/tint"
	"github.com/mitchellh/mapstructure"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	runtimeConfigID          = "bot_config"
	runtimeConfigSettings    = "settings"
	runtimeConfigLastUpdated = "last_updated"

	settingBlockProgramming    = "bloquear_programacion"
	settingProgrammingKeywords = "palabras_clave_programacion"
	settingBlockMessage        = "mensaje_bloqueo_programacion"
)

var ErrUnknownSetting = errors.New("unknown setting")

const DefaultBlockMessage = "🚫 *Mensaje bloqueado por el sistema de seguridad de Ansagrado Intelligence Pro+*\n\n" +
	"🔒 **¡Esta función está disponible solo en la versión premium!**\n" +
	"*Desbloquea la versión premium de Ansagrado Intelligence Pro+ para poder utilizar esta función.\n" +
	"AntiBlocker by Vestá Technologies*"

// DefaultProgrammingKeywords are matched as whole words or phrases, so
// short terms don't block unrelated text.
var DefaultProgrammingKeywords = []string{
	"programa", "programar", "programación", "código", "script", "python",
	"javascript", "java", "c++", "c#", "php", "html", "css", "desarrollar",
	"desarrollo", "aplicación", "app", "página web", "sitio web", "backend",
	"frontend", "fullstack", "base de datos", "sql", "mysql", "mongodb",
	"api", "endpoint", "función", "método", "variable", "constante", "bucle",
	"condicional", "def", "function", "class", "try", "except", "catch",
	"debug", "depurar", "compilar", "compilación", "terminal", "consola",
	"línea de comandos", "cli", "sdk", "framework", "librería", "módulo",
	"dependencia", "pip", "npm", "yarn", "composer", "git", "github",
	"gitlab", "bitbucket", "repositorio", "pull request", "commit", "branch",
	"devops", "ci/cd", "deploy", "despliegue", "docker", "kubernetes", "aws",
	"azure", "google cloud", "firebase", "jwt", "oauth", "thread",
	"asíncrono", "async/await", "callback", "generator", "iterador",
	"recursión", "algoritmo", "estructura de datos", "array", "arreglo",
	"diccionario", "tabla hash",
}

// RuntimeSettings are the settings kept in the config collection, which
// can change while the bot is running.
type RuntimeSettings struct {
	BlockProgramming    bool     `json:"bloquear_programacion" mapstructure:"bloquear_programacion"`
	ProgrammingKeywords []string `json:"palabras_clave_programacion" mapstructure:"palabras_clave_programacion" binding:"dive,required"`
	BlockMessage        string   `json:"mensaje_bloqueo_programacion" mapstructure:"mensaje_bloqueo_programacion" binding:"required"`
}

func DefaultRuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		BlockProgramming:    true,
		ProgrammingKeywords: slices.Clone(DefaultProgrammingKeywords),
		BlockMessage:        DefaultBlockMessage,
	}
}

func (s RuntimeSettings) document() datastore.Document {
	keywords := make([]any, len(s.ProgrammingKeywords))
	for i, k := range s.ProgrammingKeywords {
		keywords[i] = k
	}
	return datastore.Document{
		settingBlockProgramming:    s.BlockProgramming,
		settingProgrammingKeywords: keywords,
		settingBlockMessage:        s.BlockMessage,
	}
}

// BlockedKeyword returns the first programming keyword found in text,
// when blocking is enabled. Matching ignores case and requires the
// keyword to not be part of a longer word.
func (s RuntimeSettings) BlockedKeyword(text string) (string, bool) {
	if !s.BlockProgramming {
		return "", false
	}
	text = strings.ToLower(text)
	for _, kw := range s.ProgrammingKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || !strings.Contains(text, kw) {
			continue
		}
		if keywordPattern(kw).MatchString(text) {
			return kw, true
		}
	}
	return "", false
}

var (
	keywordPatternMu    sync.Mutex
	keywordPatternCache = map[string]*regexp.Regexp{}
)

func keywordPattern(kw string) *regexp.Regexp {
	keywordPatternMu.Lock()
	defer keywordPatternMu.Unlock()
	if re, ok := keywordPatternCache[kw]; ok {
		return re
	}
	re := regexp.MustCompile(`(^|[^\p{L}\p{N}_])` + regexp.QuoteMeta(kw) + `($|[^\p{L}\p{N}_])`)
	keywordPatternCache[kw] = re
	return re
}

// RuntimeSettingsUpdate is a partial update of [RuntimeSettings]. Nil
// fields are left unchanged; an empty, non-nil keyword list clears it.
type RuntimeSettingsUpdate struct {
	BlockProgramming    *bool    `json:"bloquear_programacion,omitempty"`
	ProgrammingKeywords []string `json:"palabras_clave_programacion,omitempty" binding:"omitempty,dive,required"`
	BlockMessage        *string  `json:"mensaje_bloqueo_programacion,omitempty" binding:"omitempty,min=1"`
}

func (u RuntimeSettingsUpdate) apply(s RuntimeSettings) RuntimeSettings {
	if u.BlockProgramming != nil {
		s.BlockProgramming = *u.BlockProgramming
	}
	if u.ProgrammingKeywords != nil {
		s.ProgrammingKeywords = dedupeKeywords(u.ProgrammingKeywords)
	}
	if u.BlockMessage != nil {
		s.BlockMessage = *u.BlockMessage
	}
	return s
}

func dedupeKeywords(keywords []string) []string {
	seen := make(map[string]bool, len(keywords))
	rv := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		key := strings.ToLower(k)
		if k == "" || seen[key] {
			continue
		}
		seen[key] = true
		rv = append(rv, k)
	}
	return rv
}

// RuntimeConfig holds the bot_config document of the config collection.
// The document is created with defaults on the first Load.
type RuntimeConfig struct {
	mu          sync.RWMutex
	store       *datastore.Store
	settings    RuntimeSettings
	lastUpdated time.Time
	logger      *slog.Logger
}

func NewRuntimeConfig(store *datastore.Store, logger *slog.Logger) *RuntimeConfig {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuntimeConfig{
		store:    store,
		settings: DefaultRuntimeSettings(),
		logger:   logger.With(loggerNameKey, "runtime_config"),
	}
}

// Load reads the config document, creating it with the default settings
// if it doesn't exist.
func (r *RuntimeConfig) Load(ctx context.Context) error {
	doc, err := r.store.FindOne(ctx, datastore.CollectionConfig, r.query())
	if err != nil {
		return fmt.Errorf("error loading runtime config: %w", err)
	}
	if doc != nil {
		return r.apply(doc)
	}

	defaults := DefaultRuntimeSettings()
	now := time.Now().UTC()
	_, err = r.store.InsertOne(
		ctx,
		datastore.CollectionConfig,
		datastore.Document{
			datastore.IDField:        runtimeConfigID,
			runtimeConfigSettings:    defaults.document(),
			runtimeConfigLastUpdated: now.Format(time.RFC3339),
		},
	)
	if err != nil && !errors.Is(err, datastore.ErrDuplicateID) {
		return fmt.Errorf("error creating runtime config: %w", err)
	}
	r.logger.InfoContext(ctx, "created default runtime config")

	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = defaults
	r.lastUpdated = now
	return nil
}

// Reload re-reads the config document. If it's missing, the current
// settings are kept.
func (r *RuntimeConfig) Reload(ctx context.Context) error {
	doc, err := r.store.FindOne(ctx, datastore.CollectionConfig, r.query())
	if err != nil {
		return fmt.Errorf("error reloading runtime config: %w", err)
	}
	if doc == nil {
		r.logger.WarnContext(ctx, "runtime config document missing, keeping current settings")
		return nil
	}
	return r.apply(doc)
}

// Get returns a copy of the current settings.
func (r *RuntimeConfig) Get() RuntimeSettings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.settings
	s.ProgrammingKeywords = slices.Clone(s.ProgrammingKeywords)
	return s
}

func (r *RuntimeConfig) LastUpdated() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastUpdated
}

// Set changes a single setting by its stored key.
func (r *RuntimeConfig) Set(ctx context.Context, key string, value any) (RuntimeSettings, error) {
	update := RuntimeSettingsUpdate{}
	switch key {
	case settingBlockProgramming:
		v, ok := value.(bool)
		if !ok {
			return r.Get(), fmt.Errorf("%s must be a boolean", key)
		}
		update.BlockProgramming = &v
	case settingProgrammingKeywords:
		var v []string
		if err := mapstructure.Decode(value, &v); err != nil {
			return r.Get(), fmt.Errorf("%s must be a list of strings: %w", key, err)
		}
		if v == nil {
			v = []string{}
		}
		update.ProgrammingKeywords = v
	case settingBlockMessage:
		v, ok := value.(string)
		if !ok {
			return r.Get(), fmt.Errorf("%s must be a string", key)
		}
		update.BlockMessage = &v
	default:
		return r.Get(), fmt.Errorf("%w: %q", ErrUnknownSetting, key)
	}
	return r.Update(ctx, update)
}

// Update applies a partial update, writing the full settings document
// back to the store before changing the in-memory copy.
func (r *RuntimeConfig) Update(ctx context.Context, update RuntimeSettingsUpdate) (RuntimeSettings, error) {
	if err := structValidator.Struct(update); err != nil {
		return r.Get(), err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	updated := update.apply(r.settings)
	if err := structValidator.Struct(updated); err != nil {
		return r.settings, err
	}

	now := time.Now().UTC()
	patch := datastore.Patch{
		Set: datastore.Document{
			runtimeConfigSettings:    updated.document(),
			runtimeConfigLastUpdated: now.Format(time.RFC3339),
		},
	}
	res, err := r.store.UpdateOne(ctx, datastore.CollectionConfig, r.query(), patch)
	if err != nil {
		return r.settings, fmt.Errorf("error updating runtime config: %w", err)
	}
	if res.MatchedCount == 0 {
		doc := patch.Set
		doc[datastore.IDField] = runtimeConfigID
		if _, err = r.store.InsertOne(ctx, datastore.CollectionConfig, doc); err != nil {
			return r.settings, fmt.Errorf("error creating runtime config: %w", err)
		}
	}

	r.settings = updated
	r.lastUpdated = now
	r.logger.InfoContext(ctx, "updated runtime config", "settings", structToSlogValue(updated))
	return r.copyLocked(), nil
}

func (r *RuntimeConfig) copyLocked() RuntimeSettings {
	s := r.settings
	s.ProgrammingKeywords = slices.Clone(s.ProgrammingKeywords)
	return s
}

func (*RuntimeConfig) query() datastore.Document {
	return datastore.Document{datastore.IDField: runtimeConfigID}
}

// apply decodes a stored config document over the default settings, so
// missing keys keep their defaults.
func (r *RuntimeConfig) apply(doc datastore.Document) error {
	settings := DefaultRuntimeSettings()
	var raw map[string]any
	switch v := doc[runtimeConfigSettings].(type) {
	case map[string]any:
		raw = v
	case datastore.Document:
		raw = v
	}
	if raw != nil {
		// a stored list replaces the defaults rather than merging into them
		if _, ok := raw[settingProgrammingKeywords]; ok {
			settings.ProgrammingKeywords = nil
		}
		if err := mapstructure.Decode(raw, &settings); err != nil {
			return fmt.Errorf("error decoding runtime config: %w", err)
		}
	}
	settings.ProgrammingKeywords = dedupeKeywords(settings.ProgrammingKeywords)
	if err := structValidator.Struct(settings); err != nil {
		return fmt.Errorf("invalid runtime config: %w", err)
	}

	var lastUpdated time.Time
	if s, ok := doc[runtimeConfigLastUpdated].(string); ok {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			r.logger.Warn("invalid last_updated in runtime config", tint.Err(err))
		} else {
			lastUpdated = t
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = settings
	r.lastUpdated = lastUpdated
	return nil
}
