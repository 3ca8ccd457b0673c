// Package disposal holds the static bin recommendations per waste category.
package disposal

// Category names the classifier is trained on
const (
	Recyclable = "recyclable"
	Organic    = "organic"
	EWaste     = "e-waste"
	General    = "general"
)

// Info is what the user is told to do with an item
type Info struct {
	Bin          string `json:"bin"`
	Icon         string `json:"icon,omitempty"`
	Color        string `json:"color,omitempty"`
	Instructions string `json:"instructions"`
	Examples     string `json:"examples,omitempty"`
}

var table = map[string]Info{
	Recyclable: {
		Bin:          "Blue Bin (Recyclables)",
		Icon:         "♻️",
		Color:        "#2196F3",
		Instructions: "Clean and dry before disposing. Remove caps and labels if possible.",
		Examples:     "Plastic bottles, cardboard, paper, glass, metal cans",
	},
	Organic: {
		Bin:          "Green Bin (Organic)",
		Icon:         "🟢",
		Color:        "#4CAF50",
		Instructions: "Compostable waste only. No plastic bags.",
		Examples:     "Food scraps, yard waste, coffee grounds, eggshells",
	},
	EWaste: {
		Bin:          "E-Waste Collection Point",
		Icon:         "🔴",
		Color:        "#f44336",
		Instructions: "Take to designated e-waste collection center. Do not throw in regular trash.",
		Examples:     "Batteries, phones, computers, cables, electronics",
	},
	General: {
		Bin:          "Black Bin (General Waste)",
		Icon:         "⚫",
		Color:        "#424242",
		Instructions: "Non-recyclable, non-hazardous waste.",
		Examples:     "Styrofoam, certain plastics, mixed materials",
	},
}

// Unknown is returned for items the anomaly detector rejects
var Unknown = Info{
	Bin:          "Unknown - Consult local guidelines",
	Icon:         "❓",
	Color:        "#FF00FF",
	Instructions: "This item appears unusual.",
}

// Categories lists the known categories in model order
func Categories() []string {
	return []string{Recyclable, Organic, EWaste, General}
}

// Lookup returns the entry for category, falling back to General
func Lookup(category string) Info {
	if info, ok := table[category]; ok {
		return info
	}
	return table[General]
}

// Recommend applies the anomaly override: anomalous items always get Unknown
func Recommend(category string, isAnomaly bool) Info {
	if isAnomaly {
		return Unknown
	}
	return Lookup(category)
}
