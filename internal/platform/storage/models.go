package storage

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Doctor 医生账户模型
type Doctor struct {
	ID        uint           `gorm:"primaryKey"                             json:"id"`
	Username  string         `gorm:"type:varchar(64);uniqueIndex;not null"  json:"username"`
	Name      string         `gorm:"type:varchar(64)"                       json:"name"`
	Hospital  string         `gorm:"type:varchar(128)"                      json:"hospital"`
	CreatedAt time.Time      `                                              json:"created_at"`
	UpdatedAt time.Time      `                                              json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index"                                  json:"-"`
}

// Patient 患者模型
type Patient struct {
	ID        uint           `gorm:"primaryKey"            json:"id"`
	Name      string         `gorm:"type:varchar(64)"      json:"name"`
	Gender    string         `gorm:"type:varchar(8)"       json:"gender"`
	BirthDate *time.Time     `                             json:"birth_date,omitempty"`
	Diagnosis string         `gorm:"type:text"             json:"diagnosis"`
	CreatedAt time.Time      `                             json:"created_at"`
	UpdatedAt time.Time      `                             json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index"                 json:"-"`
}

// MedicalReport 医疗报告，Findings 为结构化检查结果
type MedicalReport struct {
	ID         uint           `gorm:"primaryKey"            json:"id"`
	PatientID  uint           `gorm:"index;not null"        json:"patient_id"`
	ReportType string         `gorm:"type:varchar(32)"      json:"report_type"`
	Summary    string         `gorm:"type:text"             json:"summary"`
	Findings   datatypes.JSON `                             json:"findings,omitempty"`
	ReportedAt time.Time      `gorm:"index"                 json:"reported_at"`
	CreatedAt  time.Time      `                             json:"created_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index"                 json:"-"`
}

// Medication 用药记录
type Medication struct {
	ID        uint           `gorm:"primaryKey"            json:"id"`
	PatientID uint           `gorm:"index;not null"        json:"patient_id"`
	Name      string         `gorm:"type:varchar(128)"     json:"name"`
	Dosage    string         `gorm:"type:varchar(64)"      json:"dosage"`
	Frequency string         `gorm:"type:varchar(64)"      json:"frequency"`
	StartedAt *time.Time     `                             json:"started_at,omitempty"`
	Active    bool           `gorm:"index"                 json:"active"`
	CreatedAt time.Time      `                             json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index"                 json:"-"`
}
