package bootmain

// Stage is a step of the boot pipeline. Stages only ever move forward.
type Stage uint8

// The boot pipeline stages in the order they are reached.
const (
	StageInit Stage = iota
	StageMapLoaded
	StageDescriptorsReady
	StageAddressSpaceBuilt
	StageServicesExited
	StageTransferred
)

var stageNames = [...]string{
	StageInit:              "init",
	StageMapLoaded:         "map loaded",
	StageDescriptorsReady:  "descriptors ready",
	StageAddressSpaceBuilt: "address space built",
	StageServicesExited:    "services exited",
	StageTransferred:       "transferred",
}

// String implements fmt.Stringer for Stage.
func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}
