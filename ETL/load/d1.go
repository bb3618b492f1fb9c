package load

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/LilVoxy/wdi_pipeline/ETL/config"
	"github.com/LilVoxy/wdi_pipeline/ETL/shell"
	"github.com/LilVoxy/wdi_pipeline/ETL/utils"
	"github.com/LilVoxy/wdi_pipeline/database"
)

// Служебная таблица Cloudflare, которую нельзя удалять
const cloudflareKVTable = "_cf_KV"

const listTablesQuery = "SELECT name FROM sqlite_master WHERE type='table'"

// D1Loader управляет базой Cloudflare D1 через wrangler
type D1Loader struct {
	runner   shell.Runner
	wrangler []string
	database string
	logger   *utils.ETLLogger
}

// NewD1Loader создает новый экземпляр D1Loader
func NewD1Loader(cfg config.D1Config, runner shell.Runner, logger *utils.ETLLogger) *D1Loader {
	return &D1Loader{
		runner:   runner,
		wrangler: cfg.Wrangler,
		database: cfg.Database,
		logger:   logger,
	}
}

// ModeFlag возвращает флаг wrangler для режима D1
func ModeFlag(mode string) string {
	if mode == config.D1ModeLocal {
		return "--local"
	}
	return "--remote"
}

func (l *D1Loader) command(args ...string) shell.Command {
	return shell.Command{
		Name: l.wrangler[0],
		Args: append(append([]string{}, l.wrangler[1:]...), args...),
	}
}

func (l *D1Loader) run(ctx context.Context, args ...string) (*shell.Result, error) {
	result, err := l.runner.Run(ctx, l.command(args...))
	if err != nil {
		return nil, fmt.Errorf("ошибка выполнения wrangler: %w", err)
	}
	return result, nil
}

// ExecuteCommand выполняет SQL-команду в D1
func (l *D1Loader) ExecuteCommand(ctx context.Context, sqlText, mode string) (string, error) {
	result, err := l.run(ctx, "d1", "execute", l.database, ModeFlag(mode), "--command", sqlText, "--yes")
	if err != nil {
		return "", err
	}
	return result.Stdout, nil
}

// DropTable удаляет таблицу из D1
func (l *D1Loader) DropTable(ctx context.Context, table, mode string) error {
	if _, err := l.ExecuteCommand(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s;", database.QuoteIdent(table)), mode); err != nil {
		return fmt.Errorf("ошибка удаления таблицы %s из D1: %w", table, err)
	}
	l.logger.Info("Таблица %s удалена из базы D1 '%s'", table, l.database)
	return nil
}

// ExecuteFile применяет SQL-файл к D1
func (l *D1Loader) ExecuteFile(ctx context.Context, path, mode string) error {
	if _, err := l.run(ctx, "d1", "execute", l.database, ModeFlag(mode), "--file", path, "--yes"); err != nil {
		return fmt.Errorf("ошибка применения дампа %s: %w", path, err)
	}
	l.logger.Info("Таблица D1 обновлена из дампа %s", path)
	return nil
}

// ListTables возвращает имена таблиц D1
func (l *D1Loader) ListTables(ctx context.Context, mode string) ([]string, error) {
	out, err := l.ExecuteCommand(ctx, listTablesQuery, mode)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка таблиц D1: %w", err)
	}
	return ParseTableList(out), nil
}

// ParseTableList разбирает табличный вывод wrangler с колонкой name
func ParseTableList(output string) []string {
	var tables []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "│") {
			continue
		}
		cell := strings.TrimSpace(strings.Trim(line, "│"))
		if cell == "" || cell == "name" {
			continue
		}
		tables = append(tables, cell)
	}
	return tables
}

// DropMartTables удаляет из D1 все таблицы витрин и возвращает их имена
func (l *D1Loader) DropMartTables(ctx context.Context, mode string, prefixes []string) ([]string, error) {
	tables, err := l.ListTables(ctx, mode)
	if err != nil {
		return nil, err
	}

	var dropped []string
	for _, table := range tables {
		if table == cloudflareKVTable || !database.IsMartTable(table, prefixes) {
			l.logger.Debug("Пропуск таблицы %s", table)
			continue
		}
		if err := l.DropTable(ctx, table, mode); err != nil {
			return dropped, err
		}
		dropped = append(dropped, table)
	}
	return dropped, nil
}

// Recreate удаляет базу D1, если она существует, и создает ее заново
func (l *D1Loader) Recreate(ctx context.Context) error {
	// Ошибка list не критична: считаем, что базы нет
	result, err := l.runner.Run(ctx, l.command("d1", "list"))
	if err == nil && containsToken(result.Stdout, l.database) {
		l.logger.Info("База Cloudflare D1 '%s' найдена, удаление...", l.database)
		if _, err := l.run(ctx, "d1", "delete", l.database, "--skip-confirmation"); err != nil {
			return fmt.Errorf("ошибка удаления базы D1 %s: %w", l.database, err)
		}
	} else {
		l.logger.Info("База Cloudflare D1 '%s' не существует, удаление не требуется", l.database)
	}

	l.logger.Info("Создание базы Cloudflare D1 '%s'...", l.database)
	if _, err := l.run(ctx, "d1", "create", l.database); err != nil {
		return fmt.Errorf("ошибка создания базы D1 %s: %w", l.database, err)
	}
	return nil
}

// containsToken ищет имя как отдельное слово в выводе
func containsToken(output, name string) bool {
	fields := strings.FieldsFunc(output, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-')
	})
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}
