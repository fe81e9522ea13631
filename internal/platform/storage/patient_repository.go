package storage

import (
	"errors"

	"gorm.io/gorm"

	platformerrors "yiscore-server-go/internal/platform/errors"
)

// ErrPatientNotFound 患者不存在
var ErrPatientNotFound = platformerrors.New(platformerrors.KindStorage, "patient.get", "患者不存在")

// PatientRepository 患者数据访问层
type PatientRepository struct{}

// NewPatientRepository 创建患者数据访问层
func NewPatientRepository() *PatientRepository {
	return &PatientRepository{}
}

// GetPatient 按ID查询患者（支持事务）
func (r *PatientRepository) GetPatient(tx *gorm.DB, id uint) (*Patient, error) {
	var patient Patient
	err := tx.Where("id = ?", id).First(&patient).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPatientNotFound
		}
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "patient.get", "查询患者失败", err)
	}
	return &patient, nil
}

// ListRecentReports 查询患者最近的医疗报告，按报告时间倒序（支持事务）
func (r *PatientRepository) ListRecentReports(tx *gorm.DB, patientID uint, limit int) ([]MedicalReport, error) {
	var reports []MedicalReport
	err := tx.Where("patient_id = ?", patientID).
		Order("reported_at DESC").
		Limit(limit).
		Find(&reports).Error
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "patient.reports", "查询医疗报告失败", err)
	}
	return reports, nil
}

// ListActiveMedications 查询患者当前用药（支持事务）
func (r *PatientRepository) ListActiveMedications(tx *gorm.DB, patientID uint, limit int) ([]Medication, error) {
	var medications []Medication
	err := tx.Where("patient_id = ? AND active = ?", patientID, true).
		Order("created_at DESC").
		Limit(limit).
		Find(&medications).Error
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "patient.medications", "查询用药记录失败", err)
	}
	return medications, nil
}
