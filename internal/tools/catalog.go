package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cabinmind/copilot/pkg/models"
)

// RegisterSampleCatalog registers the representative vehicle tool catalog
// (§4.8.1): the concrete 170-tool catalog is out of scope, but these five
// tools exercise the registry/execution contract end-to-end.
func RegisterSampleCatalog(r *Registry) {
	r.Register(models.ToolDescriptor{
		Name:        "play_music",
		Description: "Play a song, optionally by a specific artist.",
		Category:    "media",
		Parameters: []models.ParameterSchema{
			{Name: "song", Type: "string", Required: true},
			{Name: "artist", Type: "string", Required: false},
		},
	}, playMusic)

	r.Register(models.ToolDescriptor{
		Name:        "set_temperature",
		Description: "Set the climate control temperature for a zone.",
		Category:    "climate",
		Parameters: []models.ParameterSchema{
			{Name: "zone", Type: "string", Required: true, Enum: []string{"driver", "passenger", "rear"}},
			{Name: "celsius", Type: "number", Required: true},
		},
	}, setTemperature)

	r.Register(models.ToolDescriptor{
		Name:        "open_window",
		Description: "Open a window at the given position.",
		Category:    "climate",
		Parameters: []models.ParameterSchema{
			{Name: "position", Type: "string", Required: true, Enum: []string{"driver", "passenger", "rear_left", "rear_right", "all"}},
		},
	}, openWindow)

	r.Register(models.ToolDescriptor{
		Name:        "navigate_to",
		Description: "Start navigation to a destination.",
		Category:    "navigation",
		Parameters: []models.ParameterSchema{
			{Name: "destination", Type: "string", Required: true},
		},
	}, navigateTo)

	r.Register(models.ToolDescriptor{
		Name:        "get_vehicle_status",
		Description: "Read back the current vehicle state snapshot.",
		Category:    "status",
		Parameters:  nil,
	}, getVehicleStatus)
}

type playMusicArgs struct {
	Song   string `json:"song"`
	Artist string `json:"artist"`
}

func playMusic(ctx context.Context, state *VehicleState, args json.RawMessage) (models.ToolResult, error) {
	var a playMusicArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return models.ToolResult{}, err
	}
	state.SetMany(map[string]any{
		models.FieldMusicPlaying: true,
		models.FieldMusicSong:    a.Song,
		models.FieldMusicArtist:  a.Artist,
	})
	msg := fmt.Sprintf("正在播放《%s》", a.Song)
	if a.Artist != "" {
		msg = fmt.Sprintf("正在播放%s的《%s》", a.Artist, a.Song)
	}
	return models.ToolResult{Success: true, Message: msg}, nil
}

type setTemperatureArgs struct {
	Zone    string  `json:"zone"`
	Celsius float64 `json:"celsius"`
}

func setTemperature(ctx context.Context, state *VehicleState, args json.RawMessage) (models.ToolResult, error) {
	var a setTemperatureArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return models.ToolResult{}, err
	}
	field := map[string]string{
		"driver":    models.FieldTempDriver,
		"passenger": models.FieldTempPassenger,
		"rear":      models.FieldTempRear,
	}[a.Zone]
	state.Set(field, a.Celsius)
	return models.ToolResult{
		Success: true,
		Message: fmt.Sprintf("已将%s温度设置为%.0f度", a.Zone, a.Celsius),
	}, nil
}

type openWindowArgs struct {
	Position string `json:"position"`
}

func openWindow(ctx context.Context, state *VehicleState, args json.RawMessage) (models.ToolResult, error) {
	var a openWindowArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return models.ToolResult{}, err
	}
	fields := map[string][]string{
		"driver":      {models.FieldWindowDriver},
		"passenger":   {models.FieldWindowPass},
		"rear_left":   {models.FieldWindowRearL},
		"rear_right":  {models.FieldWindowRearR},
		"all":         {models.FieldWindowDriver, models.FieldWindowPass, models.FieldWindowRearL, models.FieldWindowRearR},
	}[a.Position]
	for _, f := range fields {
		state.Set(f, true)
	}
	return models.ToolResult{Success: true, Message: "车窗已打开"}, nil
}

type navigateToArgs struct {
	Destination string `json:"destination"`
}

func navigateTo(ctx context.Context, state *VehicleState, args json.RawMessage) (models.ToolResult, error) {
	var a navigateToArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return models.ToolResult{}, err
	}
	state.SetMany(map[string]any{
		models.FieldNavDestination: a.Destination,
		models.FieldNavActive:      true,
	})
	return models.ToolResult{
		Success: true,
		Message: fmt.Sprintf("正在规划前往%s的路线", a.Destination),
		Data:    map[string]any{"destination": a.Destination},
	}, nil
}

func getVehicleStatus(ctx context.Context, state *VehicleState, args json.RawMessage) (models.ToolResult, error) {
	snapshot := state.Snapshot()
	data := make(map[string]any, len(snapshot))
	for k, v := range snapshot {
		data[k] = v
	}
	return models.ToolResult{Success: true, Message: "已获取车辆状态", Data: data}, nil
}
