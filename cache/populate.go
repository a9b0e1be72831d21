package cache

import (
	"context"
	"time"

	"github.com/arazmj/s3-proxy/backend"
	"github.com/arazmj/s3-proxy/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// schedulePopulation запускает фоновое заполнение кэша объектом,
// найденным на источнике. Заполнение идет на фоновом контексте и
// переживает отключение клиента; его неудача только логируется и
// никогда не влияет на уже отданный клиенту ответ.
func (m *Manager) schedulePopulation(key string, source *backend.Backend) {
	m.populateWG.Add(1)
	go func() {
		defer m.populateWG.Done()
		m.populate(key, source)
	}()
}

// populate перечитывает объект с источника и кладет его в целевой бакет
func (m *Manager) populate(key string, source *backend.Backend) {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.PopulateTimeout)
	defer cancel()

	m.semaphore <- struct{}{}
	defer func() { <-m.semaphore }()

	start := time.Now()

	obj, err := source.GetObject(ctx, key)
	if err != nil {
		logger.Warn("Cache population: failed to re-read key '%s' from source '%s': %v", key, source.ID, err)
		m.observePopulation("error")
		return
	}
	defer obj.Body.Close()

	input := &s3.PutObjectInput{
		Key:           aws.String(key),
		Body:          obj.Body,
		ContentType:   obj.ContentType,
		ContentLength: obj.ContentLength,
		Metadata:      obj.Metadata,
	}

	target := m.provider.Target()
	_, err = target.PutObject(ctx, input)
	duration := time.Since(start)

	if err != nil {
		logger.Warn("Cache population: failed to write key '%s' to target: %v", key, err)
		m.provider.ReportFailure(&backend.BackendResult{
			BackendID: target.ID,
			Method:    "PUT",
			Err:       err,
			Duration:  duration,
		})
		m.observePopulation("error")
		return
	}

	m.provider.ReportSuccess(&backend.BackendResult{
		BackendID:    target.ID,
		Method:       "PUT",
		StatusCode:   200,
		Duration:     duration,
		BytesWritten: aws.ToInt64(obj.ContentLength),
	})
	m.observePopulation("success")
	logger.Debug("Cache population: key '%s' copied from source '%s' to target in %v", key, source.ID, duration)
}

func (m *Manager) observePopulation(result string) {
	if m.metrics == nil {
		return
	}
	m.metrics.PopulationsTotal.WithLabelValues(result).Inc()
}
