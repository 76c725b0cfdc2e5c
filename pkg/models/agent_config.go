package models

// AgentKind selects which Agent Runtime variant an AgentConfig builds (§3.1,
// §4.7, §9 "Abstracting dynamic dispatch").
type AgentKind string

const (
	AgentKindSimple    AgentKind = "simple"
	AgentKindToolUsing AgentKind = "tool_using"
	AgentKindSession   AgentKind = "session"
	AgentKindPlanner   AgentKind = "planner"
)

// AgentConfig declares one agent from the `agents:` section of pipeline
// configuration (§6, §3.1). Every agent declares this tuple at construction;
// the agent runtime builds a concrete Agent value from it.
type AgentConfig struct {
	Name          string    `yaml:"name" json:"name"`
	Description   string    `yaml:"description" json:"description"`
	Capabilities  []string  `yaml:"capabilities" json:"capabilities"`
	Priority      int       `yaml:"priority" json:"priority"` // [0,100]
	Interruptible bool      `yaml:"interruptible" json:"interruptible"`
	Enabled       bool      `yaml:"enabled" json:"enabled"`
	Kind          AgentKind `yaml:"kind" json:"kind"`
}
