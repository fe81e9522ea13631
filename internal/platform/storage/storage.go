package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"yiscore-server-go/internal/platform/config"
	"yiscore-server-go/internal/platform/errors"
)

// Database 封装 gorm 连接，提供按请求作用域的会话获取。
type Database struct {
	db               *gorm.DB
	statementTimeout time.Duration
}

// Open 根据配置建立数据库连接并完成迁移。
func Open(cfg config.DatabaseConfig) (*Database, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "postgres":
		dialector = postgres.Open(cfg.URL)
	case "sqlite":
		dsn := strings.TrimPrefix(cfg.URL, "sqlite://")
		dialector = sqlite.Open(dsn)
	default:
		return nil, errors.New(errors.KindStorage, "storage.open",
			fmt.Sprintf("不支持的数据库驱动: %s", cfg.Driver))
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "storage.open", "打开数据库失败", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "storage.open", "获取底层连接失败", err)
	}

	// 连接池参数：常驻连接 + 突发上限 + 连接存活时间
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(&Doctor{}, &Patient{}, &MedicalReport{}, &Medication{}); err != nil {
		return nil, errors.Wrap(errors.KindStorage, "storage.migrate", "数据库迁移失败", err)
	}

	return &Database{
		db:               db,
		statementTimeout: cfg.StatementTimeout,
	}, nil
}

// NewWithDB wraps an existing gorm handle (useful for tests).
func NewWithDB(db *gorm.DB) *Database {
	return &Database{db: db}
}

// WithSession 以请求作用域获取会话并保证归还：成功提交、任何错误或提前返回都会回滚。
// 语句超时通过带超时的 context 下发，防止长事务占用连接。
func (d *Database) WithSession(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if d == nil || d.db == nil {
		return errors.New(errors.KindStorage, "storage.session", "数据库未初始化")
	}

	sessionCtx := ctx
	if d.statementTimeout > 0 {
		var cancel context.CancelFunc
		sessionCtx, cancel = context.WithTimeout(ctx, d.statementTimeout)
		defer cancel()
	}

	return d.db.WithContext(sessionCtx).Transaction(fn)
}

// Session 返回一个绑定 context 的只读会话句柄，不开启事务。
// 语句超时由调用方 context 控制。
func (d *Database) Session(ctx context.Context) *gorm.DB {
	return d.db.WithContext(ctx)
}

// Close 释放底层连接池。
func (d *Database) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
