package extractors

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"

	"github.com/LilVoxy/wdi_pipeline/ETL/models"
	"github.com/LilVoxy/wdi_pipeline/ETL/utils"
)

// WorldBankClient получает данные индикаторов из API Всемирного банка
type WorldBankClient struct {
	client *resty.Client
	logger *utils.ETLLogger
}

// NewWorldBankClient создает новый экземпляр WorldBankClient
func NewWorldBankClient(baseURL string, timeout time.Duration, logger *utils.ETLLogger) *WorldBankClient {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetLogger(logger.Zap().Sugar()).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	return &WorldBankClient{
		client: client,
		logger: logger,
	}
}

// flexInt принимает число как в виде числа, так и в виде строки ("per_page": "50")
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.Atoi(string(data))
	if err != nil {
		return err
	}
	*f = flexInt(v)
	return nil
}

// apiHeader первый элемент ответа: пагинация либо сообщение об ошибке
type apiHeader struct {
	Page    flexInt `json:"page"`
	Pages   flexInt `json:"pages"`
	PerPage flexInt `json:"per_page"`
	Total   flexInt `json:"total"`
	Message []struct {
		ID    string `json:"id"`
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"message"`
}

// ParseIndicatorPage разбирает ответ вида [pagination, records]
func ParseIndicatorPage(body []byte) (*models.IndicatorPage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(body, &parts); err != nil {
		return nil, fmt.Errorf("некорректный ответ API: %w", err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("пустой ответ API")
	}

	var header apiHeader
	if err := json.Unmarshal(parts[0], &header); err != nil {
		return nil, fmt.Errorf("ошибка разбора пагинации: %w", err)
	}
	if len(header.Message) > 0 {
		msg := header.Message[0]
		return nil, fmt.Errorf("ошибка API Всемирного банка %s (%s): %s", msg.ID, msg.Key, msg.Value)
	}

	page := &models.IndicatorPage{
		Pagination: models.IndicatorPagination{
			Page:    int(header.Page),
			Pages:   int(header.Pages),
			PerPage: int(header.PerPage),
			Total:   int(header.Total),
		},
	}

	// Второй элемент отсутствует или null, если данных нет
	if len(parts) > 1 && string(parts[1]) != "null" {
		if err := json.Unmarshal(parts[1], &page.Records); err != nil {
			return nil, fmt.Errorf("ошибка разбора записей: %w", err)
		}
	}
	return page, nil
}

// FetchIndicatorPage получает одну страницу индикатора
func (c *WorldBankClient) FetchIndicatorPage(ctx context.Context, indicator, date string, page, perPage int) (*models.IndicatorPage, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("indicator", indicator).
		SetQueryParams(map[string]string{
			"format":   "json",
			"date":     date,
			"page":     strconv.Itoa(page),
			"per_page": strconv.Itoa(perPage),
		}).
		Get("/country/all/indicator/{indicator}")
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса страницы %d индикатора %s: %w", page, indicator, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("API Всемирного банка вернул статус %d для страницы %d", resp.StatusCode(), page)
	}

	return ParseIndicatorPage(resp.Body())
}

// FetchIndicator получает все страницы индикатора.
// Количество страниц берется из первой страницы.
func (c *WorldBankClient) FetchIndicator(ctx context.Context, indicator, date string, perPage int) ([]models.IndicatorRecord, error) {
	var records []models.IndicatorRecord
	totalPages := 0

	for page := 1; ; page++ {
		result, err := c.FetchIndicatorPage(ctx, indicator, date, page, perPage)
		if err != nil {
			return nil, err
		}

		if totalPages == 0 {
			totalPages = result.Pagination.Pages
			if totalPages < 1 {
				totalPages = 1
			}
			c.logger.Info("Всего страниц для загрузки: %d", totalPages)
		}

		c.logger.Info("Получено %d записей со страницы %d из %d", len(result.Records), page, totalPages)
		records = append(records, result.Records...)

		if page >= totalPages {
			break
		}
	}

	return records, nil
}

// FetchPopulation получает численность населения по странам.
// Записи без кода страны отбрасываются, отсутствующие значения сохраняются как nil.
func (c *WorldBankClient) FetchPopulation(ctx context.Context, indicator, date string, perPage int) ([]models.PopulationRecord, error) {
	c.logger.Info("Загрузка данных о населении из API Всемирного банка...")

	records, err := c.FetchIndicator(ctx, indicator, date, perPage)
	if err != nil {
		return nil, err
	}

	return PopulationRecords(records), nil
}

// PopulationRecords преобразует записи индикатора в записи о населении
func PopulationRecords(records []models.IndicatorRecord) []models.PopulationRecord {
	population := make([]models.PopulationRecord, 0, len(records))
	for _, r := range records {
		if r.CountryISO3Code == nil {
			continue
		}

		record := models.PopulationRecord{CountryCode: *r.CountryISO3Code}
		if r.Value != nil {
			v := int64(math.Round(*r.Value))
			record.Population = &v
		}
		population = append(population, record)
	}
	return population
}
