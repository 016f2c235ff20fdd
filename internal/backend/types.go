package backend

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jfehre/countdart/panel/internal/calibration"
	"github.com/jfehre/countdart/panel/internal/settings"
)

// ID is a resource id. The backend sends ids as strings or integers
// depending on the resource; both decode to the same string form.
type ID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Cam is a camera attached to a dartboard.
type Cam struct {
	ID                ID                  `json:"id"`
	Name              string              `json:"name,omitempty"`
	CardName          string              `json:"card_name,omitempty"`
	HardwareID        *int                `json:"hardware_id,omitempty"`
	Source            json.RawMessage     `json:"source,omitempty"`
	Type              string              `json:"type,omitempty"`
	Active            bool                `json:"active"`
	ActiveTask        *string             `json:"active_task,omitempty"`
	CalibrationPoints []calibration.Point `json:"calibration_points"`
	CamConfig         json.RawMessage     `json:"cam_config,omitempty"`
}

// DisplayName returns the best human-readable name.
func (c Cam) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	if c.CardName != "" {
		return c.CardName
	}
	return string(c.ID)
}

// Dartboard is a physical rig with its cameras and operator settings.
type Dartboard struct {
	ID        ID                       `json:"id"`
	Name      string                   `json:"name"`
	Active    bool                     `json:"active"`
	Cams      []ID                     `json:"cams,omitempty"`
	Cameras   []ID                     `json:"cameras,omitempty"`
	OpConfigs map[string]settings.List `json:"op_configs,omitempty"`
}

// CamIDs returns the camera ids under either field name.
func (d Dartboard) CamIDs() []ID {
	if len(d.Cams) > 0 {
		return d.Cams
	}
	return d.Cameras
}

type calibrationPatch struct {
	CalibrationPoints []calibration.Point `json:"calibration_points"`
}

type errorResponse struct {
	Detail any `json:"detail"`
}
