package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StopPointKind はデプロイ時にどこまでマイグレーションを適用するかの種別を表す。
type StopPointKind int

const (
	// StopPointApplyAll はすべての未適用マイグレーションを適用する。
	StopPointApplyAll StopPointKind = iota
	// StopPointApplyUpTo は指定マイグレーションまで（それを含む）適用する。
	StopPointApplyUpTo
	// StopPointApplyNone は一件も適用しない。
	StopPointApplyNone
)

// StopPoint はアプリケーションごとの適用停止位置。
type StopPoint struct {
	Kind      StopPointKind
	Migration string // Kind が StopPointApplyUpTo の場合のみ設定される
}

// ApplyAll は全件適用の StopPoint を返す。
func ApplyAll() StopPoint {
	return StopPoint{Kind: StopPointApplyAll}
}

// ApplyUpTo は name まで適用する StopPoint を返す。
func ApplyUpTo(name string) StopPoint {
	return StopPoint{Kind: StopPointApplyUpTo, Migration: name}
}

// ApplyNone は適用しない StopPoint を返す。
func ApplyNone() StopPoint {
	return StopPoint{Kind: StopPointApplyNone}
}

// String は表示用の文字列を返す。
func (s StopPoint) String() string {
	switch s.Kind {
	case StopPointApplyAll:
		return "all"
	case StopPointApplyNone:
		return "none"
	default:
		return s.Migration
	}
}

// MarshalJSON は全件適用を null、適用なしを false、それ以外をマイグレーション名で表す。
func (s StopPoint) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case StopPointApplyAll:
		return []byte("null"), nil
	case StopPointApplyNone:
		return []byte("false"), nil
	default:
		return json.Marshal(s.Migration)
	}
}

// UnmarshalJSON は MarshalJSON の逆変換を行う。
func (s *StopPoint) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "null":
		*s = ApplyAll()
		return nil
	case "false":
		*s = ApplyNone()
		return nil
	}

	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("invalid stop point %s: %w", data, err)
	}
	if name == "" {
		return fmt.Errorf("invalid stop point: empty migration name")
	}
	*s = ApplyUpTo(name)
	return nil
}

// StopPoints はアプリケーションラベルごとの StopPoint。
type StopPoints map[string]StopPoint
