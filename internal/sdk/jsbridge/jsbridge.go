//go:build js && wasm

// Package jsbridge exposes the page's relayer SDK (window.relayerSDK) and
// injected wallet (window.ethereum) to Go code compiled to WebAssembly.
package jsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"syscall/js"

	"github.com/pendergraft/fhevmkit/internal/chains"
	"github.com/pendergraft/fhevmkit/internal/fhe"
	"github.com/pendergraft/fhevmkit/internal/sdk"
)

// ErrNotAvailable is returned when the page did not load the relayer SDK script.
var ErrNotAvailable = errors.New("relayer SDK not available in browser environment")

// Bundle is an sdk.Bundle backed by window.relayerSDK.
type Bundle struct {
	v js.Value
}

// LookupBundle returns the page's relayer SDK, if one was loaded.
func LookupBundle() (*Bundle, error) {
	v := js.Global().Get("relayerSDK")
	if !v.Truthy() {
		return nil, ErrNotAvailable
	}
	return &Bundle{v: v}, nil
}

var _ sdk.Bundle = (*Bundle)(nil)

// InitSDK awaits relayerSDK.initSDK().
func (b *Bundle) InitSDK(ctx context.Context) (bool, error) {
	res, err := await(ctx, b.v.Call("initSDK"))
	if err != nil {
		return false, err
	}
	return res.Truthy(), nil
}

// DefaultConfig reads relayerSDK.SepoliaConfig, falling back to top-level
// fields when the bundle does not ship one.
func (b *Bundle) DefaultConfig() sdk.Config {
	src := b.v.Get("SepoliaConfig")
	if !src.Truthy() {
		src = b.v
	}
	return sdk.Config{
		ACLContractAddress:           stringField(src, "aclContractAddress"),
		KMSContractAddress:           stringField(src, "kmsContractAddress"),
		InputVerifierContractAddress: stringField(src, "inputVerifierContractAddress"),
		ChainID:                      int64(intField(src, "chainId")),
		GatewayChainID:               int64(intField(src, "gatewayChainId")),
		RelayerURL:                   stringField(src, "relayerUrl"),
	}
}

// CreateInstance awaits relayerSDK.createInstance(config).
func (b *Bundle) CreateInstance(ctx context.Context, cfg sdk.Config) (fhe.Instance, error) {
	base := b.v.Get("SepoliaConfig")
	jsCfg := js.Global().Get("Object").Call("assign", js.Global().Get("Object").New(), base)
	jsCfg.Set("network", networkValue(cfg.Network))
	jsCfg.Set("publicKey", cfg.PublicKey)
	jsCfg.Set("publicParams", cfg.PublicParams)

	v, err := await(ctx, b.v.Call("createInstance", jsCfg))
	if err != nil {
		return nil, fmt.Errorf("createInstance: %w", err)
	}
	return &instance{v: v}, nil
}

// instance wraps the JavaScript instance object.
type instance struct {
	v js.Value
}

func (i *instance) PublicKey() string {
	return stringify(i.v.Call("getPublicKey"))
}

func (i *instance) PublicParams(bits int) string {
	return stringify(i.v.Call("getPublicParams", bits))
}

// Provider is a chains.Provider backed by an EIP-1193 object such as
// window.ethereum.
type Provider struct {
	v js.Value
}

// LookupProvider returns window.ethereum, if a wallet injected one.
func LookupProvider() (*Provider, error) {
	v := js.Global().Get("ethereum")
	if !v.Truthy() {
		return nil, errors.New("no injected provider (window.ethereum)")
	}
	return &Provider{v: v}, nil
}

var _ chains.Provider = (*Provider)(nil)

// Request calls provider.request({method, params}) and decodes the result
// through JSON.
func (p *Provider) Request(ctx context.Context, method string, params []any, result any) error {
	args := js.Global().Get("Object").New()
	args.Set("method", method)
	if len(params) > 0 {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encoding params: %w", err)
		}
		args.Set("params", js.Global().Get("JSON").Call("parse", string(raw)))
	}

	v, err := await(ctx, p.v.Call("request", args))
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal([]byte(js.Global().Get("JSON").Call("stringify", v).String()), result)
}

// networkValue maps an endpoint to what createInstance expects as network.
func networkValue(e chains.Endpoint) any {
	if p, ok := e.Provider.(*Provider); ok {
		return p.v
	}
	return e.URL
}

// await blocks until the promise settles or ctx ends. The callbacks are only
// released once the promise has settled.
func await(ctx context.Context, promise js.Value) (js.Value, error) {
	type outcome struct {
		v   js.Value
		err error
	}
	ch := make(chan outcome, 1)

	var onResolve, onReject js.Func
	release := func() {
		onResolve.Release()
		onReject.Release()
	}
	onResolve = js.FuncOf(func(this js.Value, args []js.Value) any {
		v := js.Undefined()
		if len(args) > 0 {
			v = args[0]
		}
		ch <- outcome{v: v}
		release()
		return nil
	})
	onReject = js.FuncOf(func(this js.Value, args []js.Value) any {
		msg := "promise rejected"
		if len(args) > 0 {
			msg = args[0].Call("toString").String()
		}
		ch <- outcome{err: errors.New(msg)}
		release()
		return nil
	})
	promise.Call("then", onResolve, onReject)

	select {
	case o := <-ch:
		return o.v, o.err
	case <-ctx.Done():
		return js.Undefined(), ctx.Err()
	}
}

func stringField(v js.Value, name string) string {
	f := v.Get(name)
	if f.Type() != js.TypeString {
		return ""
	}
	return f.String()
}

func intField(v js.Value, name string) int {
	f := v.Get(name)
	if f.Type() != js.TypeNumber {
		return 0
	}
	return f.Int()
}

func stringify(v js.Value) string {
	switch v.Type() {
	case js.TypeString:
		return v.String()
	case js.TypeUndefined, js.TypeNull:
		return ""
	default:
		return js.Global().Get("JSON").Call("stringify", v).String()
	}
}
