package repository

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/stellarpay/starbridge/pkg/domain"
)

func paymentToDomain(m *Payment) *domain.Payment {
	return &domain.Payment{
		ID:                m.ID,
		UserID:            m.UserID,
		ExternalPaymentID: m.ExternalPaymentID,
		StarsAmount:       m.StarsAmount,
		Status:            domain.PaymentStatus(m.Status),
		RawPayload:        m.RawPayload,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func paymentFromDomain(p *domain.Payment) *Payment {
	return &Payment{
		ID:                p.ID,
		UserID:            p.UserID,
		ExternalPaymentID: p.ExternalPaymentID,
		StarsAmount:       p.StarsAmount,
		Status:            string(p.Status),
		RawPayload:        p.RawPayload,
		CreatedAt:         p.CreatedAt,
	}
}

func conversionToDomain(m *Conversion) (*domain.Conversion, error) {
	var paymentIDs []uuid.UUID
	if m.PaymentIDs != "" {
		if err := json.Unmarshal([]byte(m.PaymentIDs), &paymentIDs); err != nil {
			return nil, err
		}
	}
	var fees domain.FeeBreakdown
	if m.FeeBreakdown != "" {
		if err := json.Unmarshal([]byte(m.FeeBreakdown), &fees); err != nil {
			return nil, err
		}
	}
	return &domain.Conversion{
		ID:                    m.ID,
		UserID:                m.UserID,
		PaymentIDs:            paymentIDs,
		SourceCurrency:        m.SourceCurrency,
		TargetCurrency:        m.TargetCurrency,
		SourceAmount:          m.SourceAmount,
		TargetAmount:          m.TargetAmount,
		ExchangeRate:          m.ExchangeRate,
		RateLockedUntil:       m.RateLockedUntil,
		DexPoolID:             m.DexPoolID,
		DexProvider:           m.DexProvider,
		DexTxHash:             m.DexTxHash,
		TonTxHash:             m.TonTxHash,
		Status:                domain.ConversionStatus(m.Status),
		Fees:                  fees,
		PlatformFeeAmount:     m.PlatformFeeAmount,
		PlatformFeePercentage: m.PlatformFeePercentage,
		SettlementStatus:      domain.SettlementReadiness(m.SettlementStatus),
		SettlementID:          m.SettlementID,
		ErrorMessage:          m.ErrorMessage,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}, nil
}

func conversionFromDomain(c *domain.Conversion) (*Conversion, error) {
	paymentIDs, err := json.Marshal(c.PaymentIDs)
	if err != nil {
		return nil, err
	}
	fees, err := json.Marshal(c.Fees)
	if err != nil {
		return nil, err
	}
	return &Conversion{
		ID:                    c.ID,
		UserID:                c.UserID,
		PaymentIDs:            string(paymentIDs),
		SourceCurrency:        c.SourceCurrency,
		TargetCurrency:        c.TargetCurrency,
		SourceAmount:          c.SourceAmount,
		TargetAmount:          c.TargetAmount,
		ExchangeRate:          c.ExchangeRate,
		RateLockedUntil:       c.RateLockedUntil,
		DexPoolID:             c.DexPoolID,
		DexProvider:           c.DexProvider,
		DexTxHash:             c.DexTxHash,
		TonTxHash:             c.TonTxHash,
		Status:                string(c.Status),
		FeeBreakdown:          string(fees),
		PlatformFeeAmount:     c.PlatformFeeAmount,
		PlatformFeePercentage: c.PlatformFeePercentage,
		SettlementStatus:      string(c.SettlementStatus),
		SettlementID:          c.SettlementID,
		ErrorMessage:          c.ErrorMessage,
		CreatedAt:             c.CreatedAt,
	}, nil
}

func orderToDomain(m *StarsOrder) *domain.StarsOrder {
	return &domain.StarsOrder{
		ID:             m.ID,
		UserID:         m.UserID,
		Type:           domain.OrderType(m.Type),
		StarsAmount:    m.StarsAmount,
		TonAmount:      m.TonAmount,
		Rate:           m.Rate,
		Status:         domain.OrderStatus(m.Status),
		LockedUntil:    m.LockedUntil,
		CounterOrderID: m.CounterOrderID,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func orderFromDomain(o *domain.StarsOrder) *StarsOrder {
	return &StarsOrder{
		ID:             o.ID,
		UserID:         o.UserID,
		Type:           string(o.Type),
		StarsAmount:    o.StarsAmount,
		TonAmount:      o.TonAmount,
		Rate:           o.Rate,
		Status:         string(o.Status),
		LockedUntil:    o.LockedUntil,
		CounterOrderID: o.CounterOrderID,
		CreatedAt:      o.CreatedAt,
	}
}

func swapToDomain(m *AtomicSwap) *domain.AtomicSwap {
	return &domain.AtomicSwap{
		ID:              m.ID,
		SellOrderID:     m.SellOrderID,
		BuyOrderID:      m.BuyOrderID,
		TonAmount:       m.TonAmount,
		Rate:            m.Rate,
		Status:          domain.SwapStatus(m.Status),
		ContractAddress: m.ContractAddress,
		TransferTxHash:  m.TransferTxHash,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func swapFromDomain(s *domain.AtomicSwap) *AtomicSwap {
	return &AtomicSwap{
		ID:              s.ID,
		SellOrderID:     s.SellOrderID,
		BuyOrderID:      s.BuyOrderID,
		TonAmount:       s.TonAmount,
		Rate:            s.Rate,
		Status:          string(s.Status),
		ContractAddress: s.ContractAddress,
		TransferTxHash:  s.TransferTxHash,
		CreatedAt:       s.CreatedAt,
	}
}

func feeToDomain(m *PlatformFee) *domain.PlatformFee {
	return &domain.PlatformFee{
		ID:               m.ID,
		PaymentID:        m.PaymentID,
		ConversionID:     m.ConversionID,
		UserID:           m.UserID,
		FeePercentage:    m.FeePercentage,
		FeeAmountStars:   m.FeeAmountStars,
		FeeAmountTon:     m.FeeAmountTon,
		FeeAmountUsd:     m.FeeAmountUsd,
		Status:           domain.FeeStatus(m.Status),
		Collectible:      m.Collectible,
		CollectionTxHash: m.CollectionTxHash,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func feeFromDomain(f *domain.PlatformFee) *PlatformFee {
	return &PlatformFee{
		ID:               f.ID,
		PaymentID:        f.PaymentID,
		ConversionID:     f.ConversionID,
		UserID:           f.UserID,
		FeePercentage:    f.FeePercentage,
		FeeAmountStars:   f.FeeAmountStars,
		FeeAmountTon:     f.FeeAmountTon,
		FeeAmountUsd:     f.FeeAmountUsd,
		Status:           string(f.Status),
		Collectible:      f.Collectible,
		CollectionTxHash: f.CollectionTxHash,
		CreatedAt:        f.CreatedAt,
	}
}

func settlementToDomain(m *Settlement) *domain.Settlement {
	return &domain.Settlement{
		ID:            m.ID,
		UserID:        m.UserID,
		ConversionID:  m.ConversionID,
		FiatAmount:    m.FiatAmount,
		FiatCurrency:  m.FiatCurrency,
		Status:        domain.SettlementStatus(m.Status),
		TransactionID: m.TransactionID,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func settlementFromDomain(s *domain.Settlement) *Settlement {
	return &Settlement{
		ID:            s.ID,
		UserID:        s.UserID,
		ConversionID:  s.ConversionID,
		FiatAmount:    s.FiatAmount,
		FiatCurrency:  s.FiatCurrency,
		Status:        string(s.Status),
		TransactionID: s.TransactionID,
		CreatedAt:     s.CreatedAt,
	}
}

func depositToDomain(m *ManualDeposit) *domain.ManualDeposit {
	return &domain.ManualDeposit{
		ID:               m.ID,
		UserID:           m.UserID,
		PaymentID:        m.PaymentID,
		ConversionID:     m.ConversionID,
		DepositAddress:   m.DepositAddress,
		ExpectedAmount:   m.ExpectedAmount,
		ReceivedAmount:   m.ReceivedAmount,
		TxHash:           m.TxHash,
		Confirmations:    m.Confirmations,
		MinConfirmations: m.MinConfirmations,
		Status:           domain.DepositStatus(m.Status),
		ExpiresAt:        m.ExpiresAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func depositFromDomain(d *domain.ManualDeposit) *ManualDeposit {
	return &ManualDeposit{
		ID:               d.ID,
		UserID:           d.UserID,
		PaymentID:        d.PaymentID,
		ConversionID:     d.ConversionID,
		DepositAddress:   d.DepositAddress,
		ExpectedAmount:   d.ExpectedAmount,
		ReceivedAmount:   d.ReceivedAmount,
		TxHash:           d.TxHash,
		Confirmations:    d.Confirmations,
		MinConfirmations: d.MinConfirmations,
		Status:           string(d.Status),
		ExpiresAt:        d.ExpiresAt,
		CreatedAt:        d.CreatedAt,
	}
}

func configToDomain(m *PlatformConfig) *domain.PlatformConfig {
	return &domain.PlatformConfig{
		ID:                   m.ID,
		Version:              m.Version,
		PlatformFeePct:       m.PlatformFeePct,
		DexFeePct:            m.DexFeePct,
		NetworkFeePct:        m.NetworkFeePct,
		MinConversionStars:   m.MinConversionStars,
		SettlementTonUsdRate: m.SettlementTonUsdRate,
		SettlementCurrency:   m.SettlementCurrency,
		Active:               m.Active,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}
