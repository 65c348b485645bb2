package models

// Bus is a driver account as listed to trackers of the same organisation.
// Accounts are owned by the administration service; the relay only reads them.
type Bus struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DriverID    string `json:"driverId"`
	VehicleName string `json:"vehicleName"`
}
