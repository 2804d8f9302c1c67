package poller

// Group names the part of the plan an endpoint belongs to
type Group string

const (
	GroupBulk        Group = "bulk"
	GroupConsumption Group = "consumption"
	GroupSettings    Group = "settings"
)

// Endpoint is one device path queried during a cycle
type Endpoint struct {
	Path  string
	Group Group
}

var bulkPaths = []string{
	"operating_data/",
	"advanced_data/",
}

// The device does not expose the counters under one prefix query, so each
// one is fetched on its own.
var consumptionPaths = []string{
	"consumption_data/counter",
	"consumption_data/total_hours",
	"consumption_data/total_days",
	"consumption_data/total_months",
	"consumption_data/total_years",
	"consumption_data/dhw_hours",
	"consumption_data/dhw_days",
	"consumption_data/dhw_months",
	"consumption_data/dhw_years",
}

var settingsPaths = []string{
	"settings/boiler/",
	"settings/hot_water/",
	"settings/regulation/",
	"settings/weather/",
	"settings/weather2/",
	"settings/oxygen/",
	"settings/hopper/",
	"settings/fan/",
	"settings/auger/",
	"settings/ignition/",
	"settings/pump/",
	"settings/sun/",
	"settings/misc/",
	"settings/alarm/",
	"settings/manual/",
}

// DefaultPlan returns the ordered endpoint plan of a cycle
func DefaultPlan() []Endpoint {
	plan := make([]Endpoint, 0, len(bulkPaths)+len(consumptionPaths)+len(settingsPaths))
	for _, p := range bulkPaths {
		plan = append(plan, Endpoint{Path: p, Group: GroupBulk})
	}
	for _, p := range consumptionPaths {
		plan = append(plan, Endpoint{Path: p, Group: GroupConsumption})
	}
	for _, p := range settingsPaths {
		plan = append(plan, Endpoint{Path: p, Group: GroupSettings})
	}
	return plan
}
