package wire

import (
	"encoding/json"

	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
)

// ErrorRecord is the line a pod writes when it fails mid-stream.
type ErrorRecord struct {
	Error string `json:"error"`
}

type objectLine struct {
	graffiti.Object
	Error string `json:"error,omitempty"`
}

type channelLine struct {
	graffiti.ChannelStat
	Error string `json:"error,omitempty"`
}

// DecodeObject decodes an object record. source becomes the object's
// Source, since pods do not echo it.
func DecodeObject(source string) DecodeFunc[graffiti.Object] {
	return func(line []byte) (graffiti.Object, error) {
		var rec objectLine
		if err := json.Unmarshal(line, &rec); err != nil {
			return graffiti.Object{}, graffiti.WrapError(graffiti.KindProtocol, err, "decode object record")
		}
		if rec.Error != "" {
			return graffiti.Object{}, graffiti.NewError(graffiti.KindFailure, "%s", rec.Error)
		}
		obj := rec.Object
		if err := checkObject(obj); err != nil {
			return graffiti.Object{}, err
		}
		obj.Source = source
		obj.Channels = graffiti.NormalizeChannels(obj.Channels)
		return obj, nil
	}
}

// DecodeChannelStat decodes a channel statistic record.
func DecodeChannelStat(line []byte) (graffiti.ChannelStat, error) {
	var rec channelLine
	if err := json.Unmarshal(line, &rec); err != nil {
		return graffiti.ChannelStat{}, graffiti.WrapError(graffiti.KindProtocol, err, "decode channel record")
	}
	if rec.Error != "" {
		return graffiti.ChannelStat{}, graffiti.NewError(graffiti.KindFailure, "%s", rec.Error)
	}
	if rec.Channel == "" || rec.Count < 0 {
		return graffiti.ChannelStat{}, graffiti.NewError(graffiti.KindProtocol, "channel record missing channel or count")
	}
	return rec.ChannelStat, nil
}

func checkObject(obj graffiti.Object) error {
	switch {
	case obj.Actor == "":
		return graffiti.NewError(graffiti.KindProtocol, "object record missing actor")
	case obj.Name == "":
		return graffiti.NewError(graffiti.KindProtocol, "object record missing name")
	case len(obj.Value) == 0:
		return graffiti.NewError(graffiti.KindProtocol, "object record missing value")
	case obj.Channels == nil:
		return graffiti.NewError(graffiti.KindProtocol, "object record missing channels")
	case obj.LastModified <= 0:
		return graffiti.NewError(graffiti.KindProtocol, "object record has invalid lastModified %d", obj.LastModified)
	}
	return nil
}
