package database

import "time"

// Hotspot is the asserted metadata for one mesh device, as ingested from
// chain data. Rows are read-only for the duration of a classification run.
type Hotspot struct {
	Pubkey        string  `gorm:"column:pubkey;primaryKey"`
	Lat           float64 `gorm:"column:lat"`
	Lon           float64 `gorm:"column:lon"`
	AntennaHeight float64 `gorm:"column:antenna_height_m"`
	AntennaGain   float64 `gorm:"column:antenna_gain_dbi"`
	TxPower       float64 `gorm:"column:tx_power_dbm"`
}

// TableName implements the GORM table-name override.
func (Hotspot) TableName() string {
	return "hotspots"
}

// WitnessReceipt is one observed reception event: the witness heard the
// beaconer's transmission at the recorded signal strength.
type WitnessReceipt struct {
	ID             uint64    `gorm:"column:id;primaryKey"`
	BeaconerPubkey string    `gorm:"column:beaconer_pubkey;index"`
	WitnessPubkey  string    `gorm:"column:witness_pubkey;index"`
	RSSI           float64   `gorm:"column:rssi_dbm"`
	Frequency      float64   `gorm:"column:frequency_hz"`
	ReceivedAt     time.Time `gorm:"column:received_at"`
}

// TableName implements the GORM table-name override.
func (WitnessReceipt) TableName() string {
	return "witness_receipts"
}
