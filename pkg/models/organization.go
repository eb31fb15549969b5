package models

// Address is the postal location of a building.
type Address struct {
	Address string `json:"address"`
	Office  int    `json:"office"`
}

// Organization is the full directory card for one organization: its
// building address, every phone number, and every activity it is tagged
// with. Reference data is read-only at serving time.
type Organization struct {
	Name       string   `json:"name"`
	Address    Address  `json:"address"`
	Phones     []string `json:"phones"`
	Activities []string `json:"activities"`
}
