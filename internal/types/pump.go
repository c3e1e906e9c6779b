package types

import "time"

type PumpType string

const (
	PumpTypeCentrifugal PumpType = "Centrifugal"
	PumpTypeSubmersible PumpType = "Submersible"
	PumpTypeDiaphragm   PumpType = "Diaphragm"
	PumpTypeRotary      PumpType = "Rotary"
	PumpTypePeristaltic PumpType = "Peristaltic"
)

type PumpStatus string

const (
	PumpStatusOperational PumpStatus = "Operational"
	PumpStatusMaintenance PumpStatus = "Maintenance"
	PumpStatusOffline     PumpStatus = "Offline"
	PumpStatusError       PumpStatus = "Error"
)

// Location of a pump. Address is optional.
type Location struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Address   string  `json:"address,omitempty" yaml:"address,omitempty"`
}

// PressureReading is one timestamped pressure sample in psi.
type PressureReading struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Pressure  float64   `json:"pressure" yaml:"pressure"`
}

// Pump is a managed physical pump.
// FlowRate is in GPM, Offset in seconds. Pressure keeps insertion order.
type Pump struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Type      PumpType          `json:"type"`
	Area      string            `json:"area"`
	Location  Location          `json:"location"`
	FlowRate  float64           `json:"flow_rate"`
	Offset    float64           `json:"offset"`
	Pressure  []PressureReading `json:"pressure"`
	Status    PumpStatus        `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// PumpDraft is a pump without identity and timestamps, the input of create.
type PumpDraft struct {
	Name     string            `json:"name"`
	Type     PumpType          `json:"type"`
	Area     string            `json:"area"`
	Location Location          `json:"location"`
	FlowRate float64           `json:"flow_rate"`
	Offset   float64           `json:"offset"`
	Pressure []PressureReading `json:"pressure"`
	Status   PumpStatus        `json:"status"`
}

// PumpPatch is a shallow partial update. Nil fields are left untouched.
type PumpPatch struct {
	Name     *string           `json:"name,omitempty" binding:"omitempty,min=1,max=100"`
	Type     *PumpType         `json:"type,omitempty" binding:"omitempty,oneof=Centrifugal Submersible Diaphragm Rotary Peristaltic"`
	Area     *string           `json:"area,omitempty" binding:"omitempty,min=1,max=100"`
	Location *Location         `json:"location,omitempty"`
	FlowRate *float64          `json:"flow_rate,omitempty" binding:"omitempty,gte=0"`
	Offset   *float64          `json:"offset,omitempty"`
	Pressure []PressureReading `json:"pressure,omitempty"`
	Status   *PumpStatus       `json:"status,omitempty" binding:"omitempty,oneof=Operational Maintenance Offline Error"`
}

// Apply merges the patch into p. Identity and timestamps are never touched.
func (patch PumpPatch) Apply(p *Pump) {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Type != nil {
		p.Type = *patch.Type
	}
	if patch.Area != nil {
		p.Area = *patch.Area
	}
	if patch.Location != nil {
		p.Location = *patch.Location
	}
	if patch.FlowRate != nil {
		p.FlowRate = *patch.FlowRate
	}
	if patch.Offset != nil {
		p.Offset = *patch.Offset
	}
	if patch.Pressure != nil {
		p.Pressure = append([]PressureReading(nil), patch.Pressure...)
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
}

// PumpForm is the flattened create form.
type PumpForm struct {
	Name            string     `json:"name" binding:"required,min=1,max=100"`
	Type            PumpType   `json:"type" binding:"required,oneof=Centrifugal Submersible Diaphragm Rotary Peristaltic"`
	Area            string     `json:"area" binding:"required,max=100"`
	Latitude        float64    `json:"latitude" binding:"gte=-90,lte=90"`
	Longitude       float64    `json:"longitude" binding:"gte=-180,lte=180"`
	Address         string     `json:"address,omitempty" binding:"max=200"`
	FlowRate        float64    `json:"flow_rate" binding:"gte=0"`
	Offset          float64    `json:"offset"`
	CurrentPressure *float64   `json:"current_pressure,omitempty"`
	Status          PumpStatus `json:"status" binding:"required,oneof=Operational Maintenance Offline Error"`
}

// Draft converts the form into a PumpDraft. A supplied current pressure
// becomes the single reading, stamped at now.
func (f PumpForm) Draft(now time.Time) PumpDraft {
	d := PumpDraft{
		Name: f.Name,
		Type: f.Type,
		Area: f.Area,
		Location: Location{
			Latitude:  f.Latitude,
			Longitude: f.Longitude,
			Address:   f.Address,
		},
		FlowRate: f.FlowRate,
		Offset:   f.Offset,
		Pressure: []PressureReading{},
		Status:   f.Status,
	}
	if f.CurrentPressure != nil {
		d.Pressure = append(d.Pressure, PressureReading{Timestamp: now, Pressure: *f.CurrentPressure})
	}
	return d
}
