package pipeline

// Stage is one unit of per-frame processing. Name is the stable
// identifier used both for ordering and as the routing key for commands.
type Stage interface {
	Name() string
	Process(ctx *FrameContext) error
}

// CommandHandler is implemented by stages that react to commands
// addressed to them (or to "broadcast"/"all"). A stage without this
// interface still gets the generic set_params attribute-write fallback.
type CommandHandler interface {
	HandleCommand(cmd string, args map[string]any)
}

// coreFactories holds the constructors for the fixed core sequence
// (detection, tracking, undistort, perspective), registered by the
// internal/stages package's init() — the inventory pattern spec.md's
// design notes call for in place of filesystem scan + dynamic import.
var coreFactories []func() Stage

// RegisterCore adds a constructor to the fixed core sequence. Called
// from internal/stages.init(); core stages are always present and can
// only be disabled by the health policy, never removed.
func RegisterCore(factory func() Stage) {
	coreFactories = append(coreFactories, factory)
}

// BuildCore instantiates one fresh instance of every registered core
// stage, in registration order.
func BuildCore() []Stage {
	stages := make([]Stage, 0, len(coreFactories))
	for _, factory := range coreFactories {
		stages = append(stages, factory())
	}
	return stages
}
