package transform

import (
	"github.com/Mythidas/MSPByte-sub000/pkg/provider/sophos"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/model"
	"gorm.io/datatypes"
)

const unknownSerial = "Unknown"

func Devices(scope model.Scope, endpoints []sophos.Endpoint) []*model.SourceDevice {
	out := make([]*model.SourceDevice, 0, len(endpoints))
	for _, e := range endpoints {
		serial := e.SerialNumber
		if serial == "" {
			serial = unknownSerial
		}
		metadata := datatypes.JSON(e.Raw)
		if len(metadata) == 0 {
			metadata = marshal(e)
		}
		out = append(out, &model.SourceDevice{
			Scope:      scope,
			ExternalID: e.ID,
			Hostname:   e.Hostname,
			OS:         e.OS.Name,
			Serial:     serial,
			Metadata:   metadata,
		})
	}
	return out
}
