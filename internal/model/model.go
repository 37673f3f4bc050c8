// Package model holds the GORM tables the database trace sinks write.
package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

// DatabaseModels lists every table, in migration order.
var DatabaseModels = []any{
	&ServerInfo{},
	&Session{},
	&Backtrack{},
	&Restore{},
}

// ServerInfo identifies the daemon that produced the traces in a database.
type ServerInfo struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Name      string    `json:"name" gorm:"size:127"`
	TickRate  int       `json:"tickRate"`
	StartedAt time.Time `json:"startedAt"`
}

func (*ServerInfo) TableName() string {
	return "server_infos"
}

// Session is one opened compensation session.
type Session struct {
	ID            uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID     string    `json:"sessionId" gorm:"size:36;uniqueIndex:idx_session_uuid"`
	Time          time.Time `json:"time" gorm:"index:idx_session_time"`
	Tick          int       `json:"tick" gorm:"index:idx_session_tick"`
	Attacker      uint32    `json:"attacker" gorm:"index:idx_session_attacker"`
	Mode          string    `json:"mode" gorm:"size:32"`
	TargetTime    float64   `json:"targetTime"`
	Latency       float64   `json:"latency"`
	InputTick     int       `json:"inputTick"`
	SkewCorrected bool      `json:"skewCorrected" gorm:"default:false"`
	Candidates    int       `json:"candidates"`
	Mutated       int       `json:"mutated"`
}

func (*Session) TableName() string {
	return "sessions"
}

// Backtrack is one actor processed by the resolver. Positions are stored as
// XYZ points.
type Backtrack struct {
	ID         uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID  string         `json:"sessionId" gorm:"size:36;index:idx_backtrack_session"`
	Time       time.Time      `json:"time"`
	Actor      uint32         `json:"actor" gorm:"index:idx_backtrack_actor"`
	TargetTime float64        `json:"targetTime"`
	Fraction   float64        `json:"fraction"`
	Recursive  bool           `json:"recursive" gorm:"default:false"`
	Changed    uint8          `json:"changed"`
	From       geom.Point     `json:"from"`
	To         geom.Point     `json:"to"`
	Pose       datatypes.JSON `json:"pose"`
	Aborted    string         `json:"aborted" gorm:"size:16"`
}

func (*Backtrack) TableName() string {
	return "backtracks"
}

// Restore is one actor put back at session close.
type Restore struct {
	ID        uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID string     `json:"sessionId" gorm:"size:36;index:idx_restore_session"`
	Time      time.Time  `json:"time"`
	Actor     uint32     `json:"actor" gorm:"index:idx_restore_actor"`
	Origin    string     `json:"origin" gorm:"size:8"`
	Angles    string     `json:"angles" gorm:"size:8"`
	Bounds    string     `json:"bounds" gorm:"size:8"`
	Pose      string     `json:"pose" gorm:"size:8"`
	Final     geom.Point `json:"final"`
}

func (*Restore) TableName() string {
	return "restores"
}
