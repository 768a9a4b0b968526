// File: api/schemas/schemas.go
// Shared domain types for the deskpilot orchestration engine. These are the
// structures that cross package boundaries: window observations made by the
// platform layer, intent documents moving through the filesystem mailbox,
// and the recipe format executed by the runner.
package schemas

import "time"

// Rect is a window bounds rectangle in screen coordinates.
type Rect struct {
	Left   int `json:"left" yaml:"left"`
	Top    int `json:"top" yaml:"top"`
	Right  int `json:"right" yaml:"right"`
	Bottom int `json:"bottom" yaml:"bottom"`
}

// WindowHandle identifies an OS window. Handles are externally owned: they
// are only ever observed from the platform layer, never invented, and must
// be re-validated before every use.
type WindowHandle uint64

// WindowInfo is a single observation of an OS window.
type WindowInfo struct {
	Handle    WindowHandle `json:"handle"`
	Title     string       `json:"title"`
	Class     string       `json:"class"`
	PID       int          `json:"pid"`
	Bounds    Rect         `json:"bounds"`
	Visible   bool         `json:"visible"`
	Minimized bool         `json:"minimized"`
}

// WindowSnapshot extends WindowInfo with the owning process name and the
// time the observation was made.
type WindowSnapshot struct {
	WindowInfo
	ProcessName string    `json:"process_name"`
	LastSeen    time.Time `json:"last_seen"`
}

// ShowCommand selects a window show operation on the platform layer.
type ShowCommand string

const (
	ShowRestore  ShowCommand = "restore"
	ShowMinimize ShowCommand = "minimize"
	ShowMaximize ShowCommand = "maximize"
)

// SingleInstancePolicy governs a second start request while an instance of
// the same application is live.
type SingleInstancePolicy string

const (
	// SingleInstanceDetect blocks the second start.
	SingleInstanceDetect SingleInstancePolicy = "detect"
	// SingleInstanceForce terminates the prior instance first.
	SingleInstanceForce SingleInstancePolicy = "force"
	// SingleInstanceAllow permits concurrent instances.
	SingleInstanceAllow SingleInstancePolicy = "allow"
)

// InteractionMethod identifies the UI interaction strategy that resolved a
// click. Callers and tests assert on this value.
type InteractionMethod string

const (
	MethodInvoke    InteractionMethod = "invoke"
	MethodToggle    InteractionMethod = "toggle"
	MethodSelection InteractionMethod = "selection_item"
	MethodMSAA      InteractionMethod = "msaa"
	MethodBMClick   InteractionMethod = "bm_click"
	MethodFocusTap  InteractionMethod = "focus_tap"
)

// IntentPayload is the parsed form of an intent file. The intent name must
// match a configured intent->recipe mapping; Args is optional and, when
// present, must be a string-keyed mapping.
type IntentPayload struct {
	Intent string         `yaml:"intent" json:"intent"`
	Args   map[string]any `yaml:"args,omitempty" json:"args,omitempty"`
}

// RecipeDocument is the on-disk recipe format: an ordered list of steps.
type RecipeDocument struct {
	Description string       `yaml:"description,omitempty"`
	Steps       []RecipeStep `yaml:"steps"`
}

// RecipeStep is one step of a recipe. The document form is a single-key
// mapping from step name to payload; the custom unmarshaller enforces the
// exactly-one-instruction shape.
type RecipeStep struct {
	Name    string
	Payload map[string]any
}

// ActivityStatus is the lifecycle state of one recorded step execution.
type ActivityStatus string

const (
	ActivityRunning   ActivityStatus = "running"
	ActivitySucceeded ActivityStatus = "succeeded"
	ActivityFailed    ActivityStatus = "failed"
)
