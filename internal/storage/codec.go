package storage

import (
	"encoding/json"
	"errors"

	"epinet/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Stamp sets the current schema and codec versions on a record.
func Stamp(run model.RunRecord) model.RunRecord {
	run.VersionedRecord = model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
	return run
}

func EncodeRun(run model.RunRecord) ([]byte, error) {
	return json.Marshal(run)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeStepDiagnostics(diagnostics []model.StepDiagnostics) ([]byte, error) {
	return json.Marshal(diagnostics)
}

func DecodeStepDiagnostics(data []byte) ([]model.StepDiagnostics, error) {
	var diagnostics []model.StepDiagnostics
	if err := json.Unmarshal(data, &diagnostics); err != nil {
		return nil, err
	}
	return diagnostics, nil
}

func EncodeCumulative(edges []model.CumulativeEdge) ([]byte, error) {
	return json.Marshal(edges)
}

func DecodeCumulative(data []byte) ([]model.CumulativeEdge, error) {
	var edges []model.CumulativeEdge
	if err := json.Unmarshal(data, &edges); err != nil {
		return nil, err
	}
	return edges, nil
}

func EncodeStatsHistory(history []model.StatsRecord) ([]byte, error) {
	return json.Marshal(history)
}

func DecodeStatsHistory(data []byte) ([]model.StatsRecord, error) {
	var history []model.StatsRecord
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func EncodeNetworkParams(params []model.NetworkParams) ([]byte, error) {
	return json.Marshal(params)
}

func DecodeNetworkParams(data []byte) ([]model.NetworkParams, error) {
	var params []model.NetworkParams
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, err
	}
	return params, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
