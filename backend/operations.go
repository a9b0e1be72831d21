package backend

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Адаптеры над AWS SDK: каждый метод подставляет физический бакет бэкенда
// и применяет префикс ключей, так что остальные модули оперируют только
// логическими ключами прокси. Вызовы ограничены operation_timeout из
// конфигурации менеджера: зависший бэкенд не должен держать запрос дольше.

// opContext накладывает таймаут одного вызова на контекст запроса
func (b *Backend) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.opTimeout)
}

// cancelOnCloseBody освобождает таймер таймаута вместе с закрытием тела ответа
type cancelOnCloseBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnCloseBody) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// HeadObject проверяет наличие объекта на бэкенде
func (b *Backend) HeadObject(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	ctx, cancel := b.opContext(ctx)
	defer cancel()

	return b.S3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.Config.Bucket),
		Key:    aws.String(b.MapKey(key)),
	})
}

// GetObject читает объект с бэкенда. Тело ответа закрывает вызывающая
// сторона; таймаут вызова снимается только при закрытии тела, иначе
// стриминг оборвался бы сразу после возврата.
func (b *Backend) GetObject(ctx context.Context, key string) (*s3.GetObjectOutput, error) {
	ctx, cancel := b.opContext(ctx)

	output, err := b.S3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.Config.Bucket),
		Key:    aws.String(b.MapKey(key)),
	})
	if err != nil {
		cancel()
		return nil, err
	}

	output.Body = &cancelOnCloseBody{ReadCloser: output.Body, cancel: cancel}
	return output, nil
}

// PutObject записывает объект на бэкенд. input.Key содержит логический ключ,
// Bucket и физический ключ подставляются здесь. Для HTTP-эндпоинтов
// используется потоковый клиент с UNSIGNED-PAYLOAD, чтобы не буферизовать
// тело целиком ради подсчета SHA256. Таймаут записи задает вызывающая
// сторона: длительность PUT зависит от размера тела.
func (b *Backend) PutObject(ctx context.Context, input *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
	physical := *input
	physical.Bucket = aws.String(b.Config.Bucket)
	physical.Key = aws.String(b.MapKey(aws.ToString(input.Key)))

	client := b.S3Client
	if b.StreamingPutClient != nil {
		client = b.StreamingPutClient
	}
	return client.PutObject(ctx, &physical)
}

// ListObjectsV2 перечисляет объекты бэкенда по логическому префиксу.
// Физические ключи в ответе переводятся обратно в логические; записи
// вне префикса бэкенда отбрасываются.
func (b *Backend) ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
	ctx, cancel := b.opContext(ctx)
	defer cancel()

	physical := *input
	physical.Bucket = aws.String(b.Config.Bucket)
	physical.Prefix = aws.String(b.MapKey(aws.ToString(input.Prefix)))

	output, err := b.S3Client.ListObjectsV2(ctx, &physical)
	if err != nil {
		return nil, err
	}

	if b.Config.Prefix != "" {
		filtered := output.Contents[:0]
		for _, obj := range output.Contents {
			logical, ok := b.StripKey(aws.ToString(obj.Key))
			if !ok {
				continue
			}
			obj.Key = aws.String(logical)
			filtered = append(filtered, obj)
		}
		output.Contents = filtered
	}

	return output, nil
}
