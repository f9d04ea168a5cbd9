// Package catalog carga las tablas fijas del motor (arquetipos, etapas, hitos)
// desde YAML embebido. Los datos se leen una vez y nunca se mutan.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"persona-engine/internal/domain"
)

//go:embed archetypes.yaml
var archetypesYAML []byte

//go:embed stages.yaml
var stagesYAML []byte

//go:embed milestones.yaml
var milestonesYAML []byte

// Archetype agrupa las frases y el estilo por defecto de un arquetipo.
type Archetype struct {
	Name             string                `yaml:"-"`
	SignaturePhrases []string              `yaml:"signature_phrases"`
	Boundaries       []string              `yaml:"boundaries"`
	Traits           []string              `yaml:"traits"`
	Speech           domain.SpeechPatterns `yaml:"speech"`
	Baseline         domain.EmotionState   `yaml:"baseline"`
}

// Stage es una etapa con su umbral y su comportamiento.
type Stage struct {
	domain.StageBehavior `yaml:",inline"`
	Threshold            float64 `yaml:"threshold"`
}

// Milestone es la definicion fija de un hito.
type Milestone struct {
	Type     domain.MilestoneType `yaml:"type"`
	Boost    float64              `yaml:"boost"`
	MinLevel float64              `yaml:"min_level"`
	MinDays  float64              `yaml:"min_days"`
	Message  string               `yaml:"message"`
}

// Render reemplaza {user} en el mensaje de celebracion.
func (m Milestone) Render(user string) string {
	if strings.TrimSpace(user) == "" {
		user = "friend"
	}
	return strings.ReplaceAll(m.Message, "{user}", user)
}

// Catalog es inmutable despues de Load.
type Catalog struct {
	defaultArchetype Archetype
	archetypes       map[string]Archetype
	stages           []Stage
	milestones       []Milestone
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default devuelve el catalogo embebido. Un YAML invalido es un error de build, por eso panic.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Load(archetypesYAML, stagesYAML, milestonesYAML)
		if err != nil {
			panic(fmt.Sprintf("catalog: embedded data invalid: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Load parsea y valida las tres tablas.
func Load(archetypesData, stagesData, milestonesData []byte) (*Catalog, error) {
	var archDoc struct {
		Default    Archetype            `yaml:"default"`
		Archetypes map[string]Archetype `yaml:"archetypes"`
	}
	if err := yaml.Unmarshal(archetypesData, &archDoc); err != nil {
		return nil, fmt.Errorf("parse archetypes: %w", err)
	}
	if len(archDoc.Default.SignaturePhrases) == 0 || len(archDoc.Default.Traits) == 0 {
		return nil, fmt.Errorf("default archetype incomplete")
	}

	c := &Catalog{
		defaultArchetype: archDoc.Default,
		archetypes:       make(map[string]Archetype, len(archDoc.Archetypes)),
	}
	c.defaultArchetype.Name = "default"
	for name, a := range archDoc.Archetypes {
		key := strings.ToLower(strings.TrimSpace(name))
		a.Name = key
		c.archetypes[key] = a
	}

	var stageDoc struct {
		Stages []Stage `yaml:"stages"`
	}
	if err := yaml.Unmarshal(stagesData, &stageDoc); err != nil {
		return nil, fmt.Errorf("parse stages: %w", err)
	}
	if len(stageDoc.Stages) == 0 || stageDoc.Stages[0].Threshold != 0 {
		return nil, fmt.Errorf("stages must start at threshold 0")
	}
	for i := 1; i < len(stageDoc.Stages); i++ {
		if stageDoc.Stages[i].Threshold <= stageDoc.Stages[i-1].Threshold {
			return nil, fmt.Errorf("stage %q threshold not ascending", stageDoc.Stages[i].Stage)
		}
	}
	c.stages = stageDoc.Stages

	var msDoc struct {
		Milestones []Milestone `yaml:"milestones"`
	}
	if err := yaml.Unmarshal(milestonesData, &msDoc); err != nil {
		return nil, fmt.Errorf("parse milestones: %w", err)
	}
	seen := make(map[domain.MilestoneType]struct{}, len(msDoc.Milestones))
	for _, m := range msDoc.Milestones {
		if _, dup := seen[m.Type]; dup {
			return nil, fmt.Errorf("duplicate milestone %q", m.Type)
		}
		seen[m.Type] = struct{}{}
	}
	c.milestones = msDoc.Milestones

	return c, nil
}

// Archetype devuelve el arquetipo pedido o el default (ok=false) si no existe.
func (c *Catalog) Archetype(name string) (Archetype, bool) {
	a, ok := c.archetypes[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return copyArchetype(c.defaultArchetype), false
	}
	return copyArchetype(a), true
}

// ArchetypeNames lista los arquetipos conocidos en orden alfabetico.
func (c *Catalog) ArchetypeNames() []string {
	names := make([]string, 0, len(c.archetypes))
	for n := range c.archetypes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Stages devuelve las etapas en orden ascendente.
func (c *Catalog) Stages() []Stage {
	out := make([]Stage, len(c.stages))
	for i, s := range c.stages {
		out[i] = s
		out[i].ExamplePhrases = append([]string(nil), s.ExamplePhrases...)
	}
	return out
}

// Behavior devuelve el comportamiento de una etapa.
func (c *Catalog) Behavior(stage domain.RelationshipStage) (domain.StageBehavior, bool) {
	for _, s := range c.stages {
		if s.Stage == stage {
			b := s.StageBehavior
			b.ExamplePhrases = append([]string(nil), s.ExamplePhrases...)
			return b, true
		}
	}
	return domain.StageBehavior{}, false
}

func (c *Catalog) Milestones() []Milestone {
	return append([]Milestone(nil), c.milestones...)
}

func (c *Catalog) Milestone(t domain.MilestoneType) (Milestone, bool) {
	for _, m := range c.milestones {
		if m.Type == t {
			return m, true
		}
	}
	return Milestone{}, false
}

func copyArchetype(a Archetype) Archetype {
	a.SignaturePhrases = append([]string(nil), a.SignaturePhrases...)
	a.Boundaries = append([]string(nil), a.Boundaries...)
	a.Traits = append([]string(nil), a.Traits...)
	return a
}
