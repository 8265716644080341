package infra

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// TracingOptions はトレーサープロバイダーの構成。
type TracingOptions struct {
	// Endpoint はOTLPコレクターのgRPCエンドポイント。
	Endpoint string
	// ServiceName はスパンに付与するサービス名。
	ServiceName string
	// SamplingRate は親スパンが無い場合のサンプリング率（0.0〜1.0）。
	SamplingRate float64
}

// InitTracer はOTLP(gRPC)エクスポーターを持つトレーサープロバイダーを
// 構築してグローバルに登録し、W3C TraceContext伝搬を設定する。
// 返却するシャットダウン関数は未送信スパンをフラッシュする。
// トレーシングを無効にする判断は呼び出し側が行う。
func InitTracer(ctx context.Context, opts TracingOptions) (func(context.Context) error, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(opts.Endpoint),
		// ローカル開発ではotlptracegrpc.WithInsecure()を追加する
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(opts.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SamplingRate))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}
