package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"accounthub/internal/dto"
	"accounthub/internal/model"
)

// ImportUserRow Excel 导入解析后的单行数据
type ImportUserRow struct {
	Row       int
	Username  string
	Email     string
	FirstName string
	LastName  string
	IsStaff   bool
}

// ────────────────────── ParseImportFile ──────────────────────

const maxImportRows = 1000

var (
	ErrImportNoData      = errors.New("Excel文件无数据行（第一行为表头）")
	ErrImportTooManyRows = fmt.Errorf("数据行数超过上限 %d 行", maxImportRows)
	ErrImportBadHeader   = errors.New("Excel表头缺少必要列（用户名/邮箱）")
)

// importValidate 校验导入行中的邮箱格式
var importValidate = validator.New()

// ParseImportFile 解析导入 Excel 文件，返回解析后的行数据
func (s *userService) ParseImportFile(reader io.Reader) ([]ImportUserRow, error) {
	f, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("无法解析Excel文件: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	excelRows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("读取工作表失败: %w", err)
	}

	if len(excelRows) < 2 {
		return nil, ErrImportNoData
	}

	// 解析表头（支持灵活列序）
	colIndex := parseHeaderIndex(excelRows[0])
	if colIndex["username"] < 0 || colIndex["email"] < 0 {
		return nil, ErrImportBadHeader
	}

	cell := func(row []string, col string) string {
		if idx := colIndex[col]; idx >= 0 && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	var rows []ImportUserRow
	for i := 1; i < len(excelRows); i++ {
		row := excelRows[i]
		item := ImportUserRow{
			Row:       i + 1,
			Username:  cell(row, "username"),
			Email:     cell(row, "email"),
			FirstName: cell(row, "first_name"),
			LastName:  cell(row, "last_name"),
			IsStaff:   parseBool(cell(row, "is_staff")),
		}

		// 跳过全空行
		if item.Username == "" && item.Email == "" && item.FirstName == "" && item.LastName == "" {
			continue
		}

		rows = append(rows, item)
	}

	if len(rows) == 0 {
		return nil, ErrImportNoData
	}
	if len(rows) > maxImportRows {
		return nil, ErrImportTooManyRows
	}

	return rows, nil
}

// parseHeaderIndex 解析 Excel 表头，返回列名 -> 列索引映射
func parseHeaderIndex(header []string) map[string]int {
	idx := map[string]int{
		"username":   -1,
		"email":      -1,
		"first_name": -1,
		"last_name":  -1,
		"is_staff":   -1,
	}
	for i, h := range header {
		lower := strings.ToLower(strings.TrimSpace(h))
		switch {
		case lower == "用户名" || lower == "username":
			idx["username"] = i
		case lower == "邮箱" || lower == "email":
			idx["email"] = i
		case lower == "名" || lower == "first_name":
			idx["first_name"] = i
		case lower == "姓" || lower == "last_name":
			idx["last_name"] = i
		case lower == "管理员" || lower == "is_staff":
			idx["is_staff"] = i
		}
	}
	return idx
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "是":
		return true
	}
	return false
}

// ────────────────────── ImportUsers ──────────────────────

func (s *userService) ImportUsers(ctx context.Context, rows []ImportUserRow) (*dto.ImportUserResponse, error) {
	resp := &dto.ImportUserResponse{Total: len(rows)}

	// 第一阶段：数据预校验（不接触数据库写操作）
	type validatedRow struct {
		row  ImportUserRow
		hash string
	}
	var validRows []validatedRow
	seen := make(map[string]int, len(rows))

	fail := func(row int, reason string) {
		resp.Failed++
		resp.Errors = append(resp.Errors, dto.ImportUserError{Row: row, Reason: reason})
	}

	for _, row := range rows {
		// 校验必填字段
		if row.Username == "" || row.Email == "" {
			fail(row.Row, "必填字段为空")
			continue
		}
		if len(row.Username) > 150 {
			fail(row.Row, "用户名过长")
			continue
		}
		if err := importValidate.Var(row.Email, "email"); err != nil {
			fail(row.Row, fmt.Sprintf("邮箱格式错误: %s", row.Email))
			continue
		}

		// 检查文件内重复
		if first, ok := seen[row.Username]; ok {
			fail(row.Row, fmt.Sprintf("用户名与第 %d 行重复: %s", first, row.Username))
			continue
		}

		// 检查用户名唯一性
		exists, err := s.repo.User.ExistsByUsername(ctx, row.Username)
		if err != nil {
			s.logger.Error("检查用户名失败", zap.Error(err))
			return nil, err
		}
		if exists {
			fail(row.Row, fmt.Sprintf("用户名已存在: %s", row.Username))
			continue
		}

		// 随机初始密码，用户通过设置密码邮件自行设定
		tempPassword, err := generateTempPassword(16)
		if err != nil {
			return nil, err
		}
		hash, err := hashPassword(tempPassword)
		if err != nil {
			fail(row.Row, "密码哈希失败")
			continue
		}

		seen[row.Username] = row.Row
		validRows = append(validRows, validatedRow{row: row, hash: hash})
	}

	if len(validRows) == 0 {
		return resp, nil
	}

	// 第二阶段：在事务中批量创建所有通过校验的用户
	created := make([]*model.User, 0, len(validRows))

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		s.logger.Error("开启事务失败", zap.Error(err))
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			if tx != nil {
				tx.Rollback()
			}
			panic(r)
		}
	}()

	txRepo := s.repo.WithTx(tx)

	for _, vr := range validRows {
		row := vr.row
		user := &model.User{
			Username:     row.Username,
			Email:        row.Email,
			FirstName:    row.FirstName,
			LastName:     row.LastName,
			IsStaff:      row.IsStaff,
			IsActive:     true,
			PasswordHash: vr.hash,
		}

		if err := txRepo.User.CreateWithProfile(ctx, user, nil); err != nil {
			// 事务中任一写入失败则全部回滚
			if tx != nil {
				tx.Rollback()
			}
			s.logger.Error("导入用户写入失败，事务回滚",
				zap.Int("row", row.Row), zap.Error(err))
			return nil, fmt.Errorf("第 %d 行写入数据库失败，已回滚全部导入: %w", row.Row, err)
		}
		created = append(created, user)
	}

	if tx != nil {
		if err := tx.Commit().Error; err != nil {
			s.logger.Error("提交事务失败", zap.Error(err))
			return nil, err
		}
	}
	resp.Success = len(created)

	// 提交后逐个发送设置密码邮件
	for _, user := range created {
		s.afterUserCreated(ctx, user)
	}

	s.logger.Info("批量导入用户完成",
		zap.Int("total", resp.Total), zap.Int("success", resp.Success), zap.Int("failed", resp.Failed))
	return resp, nil
}
