package chat

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"yiscore-server-go/internal/platform/config"
	"yiscore-server-go/internal/platform/storage"
)

// ContextBuilder 从持久层装配患者上下文，生成注入到对话头部的系统消息。
// 报告与用药数量受配置上限约束，防止上下文超出模型窗口。
type ContextBuilder struct {
	repo   *storage.PatientRepository
	limits config.ContextConfig
}

// NewContextBuilder 创建患者上下文装配器
func NewContextBuilder(repo *storage.PatientRepository, limits config.ContextConfig) *ContextBuilder {
	return &ContextBuilder{
		repo:   repo,
		limits: limits,
	}
}

// BuildPatientContext 加载患者信息并汇总为一条 system 消息。
// 患者不存在时返回 storage.ErrPatientNotFound。
func (b *ContextBuilder) BuildPatientContext(tx *gorm.DB, patientID uint) (*ChatMessage, error) {
	patient, err := b.repo.GetPatient(tx, patientID)
	if err != nil {
		return nil, err
	}

	reports, err := b.repo.ListRecentReports(tx, patientID, b.limits.MaxMedicalReports)
	if err != nil {
		return nil, err
	}

	medications, err := b.repo.ListActiveMedications(tx, patientID, b.limits.MaxMedications)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("以下是当前患者的临床背景信息，回答时请结合参考。\n")
	sb.WriteString(fmt.Sprintf("患者：%s，性别：%s", patient.Name, patient.Gender))
	if patient.Diagnosis != "" {
		sb.WriteString(fmt.Sprintf("，诊断：%s", patient.Diagnosis))
	}
	sb.WriteString("\n")

	if len(reports) > 0 {
		sb.WriteString(fmt.Sprintf("最近%d份医疗报告：\n", len(reports)))
		for _, report := range reports {
			sb.WriteString(fmt.Sprintf("- [%s] %s：%s\n",
				report.ReportedAt.Format("2006-01-02"), report.ReportType, report.Summary))
		}
	}

	if len(medications) > 0 {
		sb.WriteString(fmt.Sprintf("当前用药（%d种）：\n", len(medications)))
		for _, med := range medications {
			sb.WriteString(fmt.Sprintf("- %s %s %s\n", med.Name, med.Dosage, med.Frequency))
		}
	}

	return &ChatMessage{
		Role:    RoleSystem,
		Content: strPtr(sb.String()),
	}, nil
}
