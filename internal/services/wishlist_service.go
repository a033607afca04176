package services

import (
	"context"

	"bloomshop/internal/apperr"
	"bloomshop/internal/models"
	"bloomshop/internal/repositories"

	"go.uber.org/zap"
)

// MoveToCartRequest carries the line item options chosen when moving a product to the cart.
type MoveToCartRequest struct {
	Quantity     int    `json:"quantity" validate:"required,min=1"`
	Size         string `json:"size,omitempty" validate:"max=20"`
	Vase         string `json:"vase,omitempty" validate:"max=50"`
	PersonalNote string `json:"personalNote,omitempty" validate:"max=500"`
}

// MoveToCartResult is the state of both aggregates after a move.
type MoveToCartResult struct {
	Wishlist []models.WishlistItem `json:"wishlist"`
	Cart     *models.Cart          `json:"cart"`
}

// WishlistService manages wishlists and the wishlist to cart transfer.
type WishlistService struct {
	store  repositories.Store
	logger *zap.Logger
}

// NewWishlistService creates a new WishlistService.
func NewWishlistService(store repositories.Store, logger *zap.Logger) *WishlistService {
	return &WishlistService{store: store, logger: logger.Named("wishlist")}
}

// Get returns the user's wishlist.
func (s *WishlistService) Get(ctx context.Context, userID string) ([]models.WishlistItem, error) {
	return s.store.Users().GetWishlist(ctx, userID)
}

// Add puts productID on the wishlist. Adding a product already present succeeds.
func (s *WishlistService) Add(ctx context.Context, userID, productID string) ([]models.WishlistItem, error) {
	if _, err := s.store.Products().GetByID(ctx, productID); err != nil {
		return nil, err
	}
	if err := s.store.Users().AddToWishlist(ctx, userID, productID); err != nil {
		return nil, err
	}
	return s.store.Users().GetWishlist(ctx, userID)
}

// Remove takes productID off the wishlist.
func (s *WishlistService) Remove(ctx context.Context, userID, productID string) ([]models.WishlistItem, error) {
	removed, err := s.store.Users().RemoveFromWishlist(ctx, userID, productID)
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, apperr.NotInWishlist("product %s is not in the wishlist", productID)
	}
	return s.store.Users().GetWishlist(ctx, userID)
}

// Cart returns the user's cart, or an empty one when none exists yet.
func (s *WishlistService) Cart(ctx context.Context, userID string) (*models.Cart, error) {
	cart, err := s.store.Carts().GetByUserID(ctx, userID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return &models.Cart{UserID: userID, Items: []models.CartItem{}}, nil
	}
	return cart, err
}

// MoveToCart removes productID from the wishlist and adds it to the cart as one unit.
//
// Preconditions are checked before any write and again inside the transaction: between the
// two, another request may have bought the last stems or moved the same product.
func (s *WishlistService) MoveToCart(ctx context.Context, userID, productID string, req MoveToCartRequest) (*MoveToCartResult, error) {
	if req.Quantity < 1 {
		return nil, apperr.Validation("quantity must be at least 1")
	}
	if err := s.checkMovable(ctx, s.store, userID, productID, req.Quantity); err != nil {
		return nil, err
	}

	result := &MoveToCartResult{}
	err := s.store.Transaction(ctx, func(tx repositories.Store) error {
		product, err := tx.Products().GetByID(ctx, productID)
		if err != nil {
			return err
		}
		if product.Inventory.Stock < req.Quantity {
			return insufficientForCart(product, req.Quantity)
		}

		removed, err := tx.Users().RemoveFromWishlist(ctx, userID, productID)
		if err != nil {
			return err
		}
		if !removed {
			return apperr.NotInWishlist("product %s is not in the wishlist", productID)
		}

		cart, err := tx.Carts().GetOrCreateForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		cart.Merge(models.CartItem{
			ProductID:    product.ID,
			Quantity:     req.Quantity,
			Price:        product.Price,
			Size:         req.Size,
			Vase:         req.Vase,
			PersonalNote: req.PersonalNote,
		})
		if err := tx.Carts().Save(ctx, cart); err != nil {
			return err
		}

		wishlist, err := tx.Users().GetWishlist(ctx, userID)
		if err != nil {
			return err
		}
		result.Wishlist = wishlist
		result.Cart = cart
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("moved product to cart",
		zap.String("user_id", userID),
		zap.String("product_id", productID),
		zap.Int("quantity", req.Quantity),
	)
	return result, nil
}

func (s *WishlistService) checkMovable(ctx context.Context, st repositories.Store, userID, productID string, qty int) error {
	product, err := st.Products().GetByID(ctx, productID)
	if err != nil {
		return err
	}
	if product.Inventory.Stock < qty {
		return insufficientForCart(product, qty)
	}
	present, err := st.Users().HasWishlistItem(ctx, userID, productID)
	if err != nil {
		return err
	}
	if !present {
		return apperr.NotInWishlist("product %s is not in the wishlist", productID)
	}
	return nil
}

func insufficientForCart(product *models.Product, qty int) error {
	return apperr.InsufficientStock("insufficient stock for %s (requested: %d, available: %d)",
		product.Name, qty, product.Inventory.Stock)
}
